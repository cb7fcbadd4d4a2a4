package notifications

import "github.com/gatherly/gatherly/internal/domain"

// Eligible reports whether a notification of the given kind may be delivered
// to a recipient with the given verification state. Email verification
// notifications must reach users who are, by definition, not yet verified;
// every other kind requires a confirmed mailbox.
//
// The dequeue queries in the postgres repository encode the same rule; this
// predicate is the single place the rule is stated in Go.
func Eligible(kind domain.Kind, emailVerified bool) bool {
	if kind == domain.KindEmailVerification {
		return true
	}
	return emailVerified
}
