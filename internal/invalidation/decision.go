package invalidation

const statusPublish = "publish"

// ShouldInvalidate reports whether a status transition changes what visitors
// can see: entering publish, or leaving it.
func ShouldInvalidate(newStatus, oldStatus string) bool {
	if newStatus == statusPublish {
		return true
	}
	return oldStatus == statusPublish && newStatus != oldStatus
}

// Decide applies ShouldInvalidate and lets the policy have the last word.
func Decide(policy Policy, t Transition) bool {
	raw := ShouldInvalidate(t.NewStatus, t.OldStatus)
	if policy == nil {
		return raw
	}
	return policy.OverrideInvalidation(raw, t)
}
