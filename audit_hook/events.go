package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobEnqueued     = "job.enqueued"
	ActionJobClaimed      = "job.claimed"
	ActionJobCompleted    = "job.completed"
	ActionJobRetrying     = "job.retrying"
	ActionJobDeadLettered = "job.dead_lettered"
	ActionJobRecovered    = "job.recovered"
	ActionReportRace      = "job.report_race"
)

// CategoryJob groups every action this extension emits.
const CategoryJob = "workq.job"

// ResourceJob is the Resource field of every event.
const ResourceJob = "job"

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobEnqueued,
		ActionJobClaimed,
		ActionJobCompleted,
		ActionJobRetrying,
		ActionJobDeadLettered,
		ActionJobRecovered,
		ActionReportRace,
	}
}
