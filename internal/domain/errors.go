package domain

// Domain errors
var (
	ErrRecordNotFound      = &DomainError{Message: "sync record not found"}
	ErrLocationNotFound    = &DomainError{Message: "location not found"}
	ErrAlreadySynced       = &DomainError{Message: "sync record already synced"}
	ErrConcurrentlyClaimed = &DomainError{Message: "sync record is being processed by another worker"}
)

// DomainError represents a domain-level error
type DomainError struct {
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}
