package e2e

import (
	"github.com/cucumber/godog"

	"findiff/e2e/steps/auth"
	"findiff/e2e/steps/common"
	"findiff/e2e/steps/workflow"
)

// RegisterSteps registers all step definitions from modular packages.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	auth.RegisterSteps(ctx, tc)
	workflow.RegisterSteps(ctx, tc)
}
