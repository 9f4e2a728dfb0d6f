package hue

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// pendingCommand pairs a coalesced command with its resolved target and
// the tree nodes consumed to build it.
type pendingCommand struct {
	appliance Appliance
	command   map[string]any
	sources   []string
}

// commandQueue coalesces commands per target address between flushes,
// so a burst of writes against one appliance reaches the bridge as a
// single request.
type commandQueue struct {
	mu      sync.Mutex
	pending map[string]*pendingCommand
}

func newCommandQueue() *commandQueue {
	return &commandQueue{pending: make(map[string]*pendingCommand)}
}

// enqueue merges a command into the pending set for its target. Fields
// from later writes win over earlier ones.
func (q *commandQueue) enqueue(app Appliance, cmd map[string]any, source string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pc, ok := q.pending[app.Trigger]
	if !ok {
		q.pending[app.Trigger] = &pendingCommand{
			appliance: app,
			command:   cmd,
			sources:   []string{source},
		}
		return
	}

	pc.appliance = app
	for field, value := range cmd {
		pc.command[field] = value
	}
	for _, existing := range pc.sources {
		if existing == source {
			return
		}
	}
	pc.sources = append(pc.sources, source)
}

// drain empties the queue, returning the pending commands ordered by
// target address.
func (q *commandQueue) drain() []*pendingCommand {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}
	drained := make([]*pendingCommand, 0, len(q.pending))
	for _, pc := range q.pending {
		drained = append(drained, pc)
	}
	q.pending = make(map[string]*pendingCommand)

	sort.Slice(drained, func(i, j int) bool {
		return drained[i].appliance.Trigger < drained[j].appliance.Trigger
	})
	return drained
}

func (q *commandQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// flushLoop drains the queue on the configured cadence. Commands still
// pending at shutdown are dropped, not flushed against a bridge we may
// be stopping because of.
func (b *Bridge) flushLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.GetFlushInterval())
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			if dropped := b.queue.depth(); dropped > 0 {
				b.logInfo("dropping pending commands on shutdown", "count", dropped)
			}
			return
		case <-ticker.C:
			for _, pc := range b.queue.drain() {
				b.dispatch(*pc)
			}
		}
	}
}

// dispatch sends one command to the bridge, clears the consumed
// command nodes so the next poll repopulates them from bridge truth,
// and records the outcome on the appliance and the info channel.
func (b *Bridge) dispatch(pc pendingCommand) {
	app := pc.appliance
	cmd := pc.command

	for _, source := range pc.sources {
		b.clearNode(source)
	}
	for field := range cmd {
		b.clearNode(app.Path + ".action." + field)
	}
	normalizeXY(cmd)

	address := strings.TrimPrefix(app.Trigger, "/")
	method := app.Method
	if method == "" {
		method = http.MethodPut
	}

	rec := newActionRecord(time.Now(), cmd)
	results, err := b.client.Send(b.ctx, method, address, cmd)
	if err != nil {
		rec.Error = true
		results = []map[string]any{{
			"error": map[string]any{
				"description": err.Error(),
				"address":     "/" + address,
			},
		}}
		b.logError("command dispatch failed", err, "address", address)
	} else {
		for _, element := range results {
			if errObj, ok := element["error"].(map[string]any); ok {
				rec.Error = true
				b.logWarn("bridge rejected command field",
					"address", address, "description", stringVal(errObj["description"]))
			} else {
				b.logDebug("command field accepted", "address", address)
			}
		}
	}

	if data, marshalErr := json.Marshal(results); marshalErr == nil {
		rec.LastResult = string(data)
	} else {
		rec.LastResult = "[]"
	}

	b.setLastAction(app.Path, rec)
	b.writeActionRecord(app.Path+".action.lastAction", rec)
	b.writeActionRecord("info.lastAction", rec)
}

// normalizeXY coerces the accepted xy input shapes onto the wire
// format, a two-element float array. Unusable values are dropped.
func normalizeXY(cmd map[string]any) {
	raw, ok := cmd["xy"]
	if !ok {
		return
	}
	switch v := raw.(type) {
	case [2]float64:
	case string:
		parts, err := splitNumbers(v, 2)
		if err != nil {
			delete(cmd, "xy")
			return
		}
		cmd["xy"] = [2]float64{parts[0], parts[1]}
	case []any:
		if len(v) == 2 {
			x, okX := numberVal(v[0])
			y, okY := numberVal(v[1])
			if okX && okY {
				cmd["xy"] = [2]float64{x, y}
				return
			}
		}
		delete(cmd, "xy")
	default:
		delete(cmd, "xy")
	}
}
