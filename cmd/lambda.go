package main

import (
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"icp-wizard/handler"
)

func newLambdaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Run the relay API as an AWS Lambda API Gateway proxy handler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.relayService(cmd.Context())
			if err != nil {
				return err
			}
			h, err := handler.NewHandler(svc, handler.WithLogger(a.logger))
			if err != nil {
				return err
			}
			lambda.Start(h.Handle)
			return nil
		},
	}
}
