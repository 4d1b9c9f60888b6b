package infra

const (
	// RedisNamespace isolates this service's keys and channels in a shared Redis.
	RedisNamespace = "workflowacl"
)

// Pub/Sub channels
const (
	// RedisChanPolicyUpdate is published after a grant or revoke; subscribers reload the policy table.
	RedisChanPolicyUpdate = RedisNamespace + ":policy-update"
)
