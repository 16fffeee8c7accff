package lessonrun

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/workflow"
)

// Registrar is satisfied by worker.Worker and the test workflow environment.
type Registrar interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

func Register(r Registrar, acts *Activities) {
	r.RegisterWorkflowWithOptions(GenerateLessonWorkflow, workflow.RegisterOptions{Name: WorkflowGenerateLesson})
	r.RegisterWorkflowWithOptions(RetryActivityWorkflow, workflow.RegisterOptions{Name: WorkflowRetryActivity})
	r.RegisterActivityWithOptions(acts.Generate, activity.RegisterOptions{Name: ActivityGenerate})
	r.RegisterActivityWithOptions(acts.Retry, activity.RegisterOptions{Name: ActivityRetry})
	r.RegisterActivityWithOptions(acts.MarkRunFailed, activity.RegisterOptions{Name: ActivityMarkRunFailed})
}
