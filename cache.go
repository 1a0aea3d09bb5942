package pdfread

import (
	"fmt"
	"log/slog"

	"github.com/ScriptRock/pdfread/internal/types"
)

// objectCache holds the resolved objects of a session, keyed by generation
// and object number. Entries are written once.
type objectCache struct {
	objs   map[uint16]map[uint32]types.Object
	strict bool
	log    *slog.Logger
}

func newObjectCache(strict bool, log *slog.Logger) *objectCache {
	return &objectCache{
		objs:   make(map[uint16]map[uint32]types.Object),
		strict: strict,
		log:    log,
	}
}

func (c *objectCache) get(ptr types.Objptr) (types.Object, bool) {
	obj, ok := c.objs[ptr.Gen][ptr.ID]
	return obj, ok
}

// put stores obj for ptr. Storing a second value for the same reference is
// an error in strict mode and replaces the first one otherwise.
func (c *objectCache) put(ptr types.Objptr, obj types.Object) error {
	ids := c.objs[ptr.Gen]
	if ids == nil {
		ids = make(map[uint32]types.Object)
		c.objs[ptr.Gen] = ids
	}
	if _, ok := ids[ptr.ID]; ok {
		msg := fmt.Sprintf("Overwriting cache for %d %d", ptr.Gen, ptr.ID)
		if c.strict {
			return &ReadError{Msg: msg, Pos: -1}
		}
		c.log.Warn(msg, slog.Any("ref", ptr))
	}
	ids[ptr.ID] = obj
	return nil
}

func (c *objectCache) len() int {
	n := 0
	for _, ids := range c.objs {
		n += len(ids)
	}
	return n
}
