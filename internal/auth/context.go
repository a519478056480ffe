// ABOUTME: Carries the authenticated subject through request handlers
// ABOUTME: Provides WithSubject/SubjectFromContext for propagating auth info via context

package auth

import "context"

// subjectKey is the key type for storing the subject in context.Context.
type subjectKey struct{}

// WithSubject returns a new context carrying the authenticated subject.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the authenticated subject, or "" when the request was not authenticated.
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(subjectKey{}).(string)
	return subject
}
