package catalog

import (
	"fmt"

	"github.com/google/uuid"

	"tablectl/pkg/identity"
)

type Op uint8

const (
	OpPutTable Op = iota + 1
	OpDropTable
)

// Command is one replicated catalog mutation. ID correlates a proposal with
// its applied result across the command log.
type Command struct {
	Op        Op                   `json:"op"`
	Namespace identity.NamespaceID `json:"namespace"`
	Table     *Table               `json:"table,omitempty"`
	ID        uuid.UUID            `json:"id"`
}

func NewPutTable(ns identity.NamespaceID, table Table) Command {
	return Command{
		Op:        OpPutTable,
		Namespace: ns,
		Table:     &table,
		ID:        uuid.New(),
	}
}

func NewDropTable(ns identity.NamespaceID) Command {
	return Command{
		Op:        OpDropTable,
		Namespace: ns,
		ID:        uuid.New(),
	}
}

func (c Command) Validate() error {
	if c.Namespace == "" {
		return fmt.Errorf("%w: empty namespace", ErrInvalidTable)
	}
	switch c.Op {
	case OpPutTable:
		if c.Table == nil {
			return fmt.Errorf("%w: put without table", ErrInvalidTable)
		}
		return c.Table.Validate()
	case OpDropTable:
		return nil
	default:
		return fmt.Errorf("%w: op %d", ErrUnknownCommand, c.Op)
	}
}
