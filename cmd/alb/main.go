// Command alb issues CWTs behind Application Load Balancer target group events.
package main

import (
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/boogy/aws-cwt-issuer/pkg/handler"
)

func main() {
	bootstrap, err := handler.NewBootstrap()
	if err != nil {
		panic(err)
	}

	h := handler.NewAwsApplicationLoadBalancerFromBootstrap(bootstrap)

	// lambda.Start never returns; flush the S3 logs when the runtime stops us
	lambda.StartWithOptions(h.Handler, lambda.WithEnableSIGTERM(bootstrap.Cleanup))
}
