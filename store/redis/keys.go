package redis

// Redis key naming conventions. All keys share a prefix to avoid collisions:
//
//	{prefix}:pending      LIST  job ids, LPUSH at the head, RPOP at the tail
//	{prefix}:in-flight    ZSET  job id → lease deadline (unix ms)
//	{prefix}:scheduled    ZSET  job id → due time (unix ms)
//	{prefix}:completed    LIST  job ids, newest at the head
//	{prefix}:dead-letter  LIST  job ids, newest at the head
//	{prefix}:job:{id}     HASH  the job record

const defaultPrefix = "workq"

type keys struct {
	pending    string
	inFlight   string
	scheduled  string
	completed  string
	deadLetter string
	jobPrefix  string
}

func newKeys(prefix string) keys {
	p := prefix + ":"
	return keys{
		pending:    p + "pending",
		inFlight:   p + "in-flight",
		scheduled:  p + "scheduled",
		completed:  p + "completed",
		deadLetter: p + "dead-letter",
		jobPrefix:  p + "job:",
	}
}

// job returns the key for a job record: {prefix}:job:{id}
func (k keys) job(id string) string { return k.jobPrefix + id }
