package events

// TopicCommitmentPaymentWindowExpired is emitted once per commitment the sweeper expires.
const TopicCommitmentPaymentWindowExpired = "commitment.payment_window_expired"
