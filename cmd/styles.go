package main

import "github.com/charmbracelet/lipgloss"

var (
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ed6666")).Bold(true)
	hintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	headingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#552222")).Bold(true).Underline(true)
	pathStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
)
