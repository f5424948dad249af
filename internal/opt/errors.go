package opt

import "fmt"

// DataIntegrityError reports broken input relations: conflicting duplicate
// priorities, negative quantities. The run aborts before model construction.
type DataIntegrityError struct {
	Detail string
}

func (e *DataIntegrityError) Error() string { return "data integrity: " + e.Detail }

func integrityErrf(format string, args ...any) error {
	return &DataIntegrityError{Detail: fmt.Sprintf(format, args...)}
}

// SparseDomainError reports a reference to an assignment variable outside
// its order's candidate-depot domain. It always indicates a
// constraint-generation bug and is never treated as an implicit zero.
type SparseDomainError struct {
	OrderID string
	DepotID string
}

func (e *SparseDomainError) Error() string {
	return fmt.Sprintf("assignment variable (%s,%s) outside candidate domain", e.OrderID, e.DepotID)
}
