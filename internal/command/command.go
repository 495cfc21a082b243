// Package command defines the unit of indexing work carried on the queue and
// its JSON wire encoding.
package command

import (
	"encoding/json"
	"errors"
	"fmt"

	docerrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/records"
)

// Kind tags what a Command does.
type Kind string

const (
	KindIndex    Kind = "index"
	KindDeIndex  Kind = "deindex"
	KindOptimize Kind = "optimize"
	KindPurgeAll Kind = "purge_all"
)

// ErrMalformed marks a payload that does not decode to a valid Command.
var ErrMalformed = errors.New("malformed command")

// Command is one unit of indexing work. Record is set for KindIndex and
// KindDeIndex and must be nil otherwise.
type Command struct {
	Kind   Kind            `json:"kind"`
	Record *records.Record `json:"record,omitempty"`
}

// Index returns a command that (re)indexes rec.
func Index(rec records.Record) Command {
	return Command{Kind: KindIndex, Record: &rec}
}

// DeIndex returns a command that removes the document for id. Only the
// identity travels on the wire.
func DeIndex(id records.Identity) Command {
	return Command{Kind: KindDeIndex, Record: &records.Record{Identity: id}}
}

// Optimize returns a command requesting compaction when the drain closes.
func Optimize() Command {
	return Command{Kind: KindOptimize}
}

// PurgeAll returns a command that empties the index.
func PurgeAll() Command {
	return Command{Kind: KindPurgeAll}
}

// Identity returns the identity the command targets, if any.
func (c Command) Identity() (records.Identity, bool) {
	if c.Record == nil {
		return records.Identity{}, false
	}
	return c.Record.Identity, true
}

func (c Command) String() string {
	if id, ok := c.Identity(); ok {
		return fmt.Sprintf("%s(%s)", c.Kind, id.ID())
	}
	return string(c.Kind)
}

// Validate checks the kind/record pairing and the record identity.
func (c Command) Validate() error {
	switch c.Kind {
	case KindIndex, KindDeIndex:
		if c.Record == nil {
			return malformed(fmt.Sprintf("%s command has no record", c.Kind), nil)
		}
		if err := c.Record.Validate(); err != nil {
			return malformed(fmt.Sprintf("%s command has an invalid identity", c.Kind), err)
		}
	case KindOptimize, KindPurgeAll:
		if c.Record != nil {
			return malformed(fmt.Sprintf("%s command must not carry a record", c.Kind), nil)
		}
	case "":
		return malformed("command has no kind", nil)
	default:
		return malformed(fmt.Sprintf("unknown command kind %q", c.Kind), nil)
	}
	return nil
}

// Encode serialises a valid command to JSON.
func Encode(c Command) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, docerrors.InternalError("failed to encode command", err)
	}
	return data, nil
}

// Decode parses and validates a queue payload. Every failure matches
// ErrMalformed through errors.Is.
func Decode(data []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return Command{}, malformed("payload is not a JSON command", err)
	}
	if err := c.Validate(); err != nil {
		return Command{}, err
	}
	return c, nil
}

func malformed(msg string, cause error) error {
	return docerrors.New(docerrors.ErrCodeMalformedCommand, msg, errors.Join(ErrMalformed, cause))
}
