// Command fdpinspect is an admin/introspection CLI for a recorded FDP
// session: it reads a recording file and answers tidwall/gjson-style
// path queries against a JSON projection of each tick's structural log,
// generalizing Engine.ModulesInfo()-style introspection (system/core)
// from live in-process state to an offline recording file.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/gjson"

	"github.com/fdpkit/fdp/system/recorder"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: fdpinspect <recordingPath> <gjson-path>")
		return 1
	}
	path, query := args[0], args[1]

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fdpinspect: cannot open recording: %v\n", err)
		return 1
	}
	defer f.Close()

	r := recorder.NewReader(f)
	var ticks []map[string]any
	for {
		rec, err := r.ReadTick()
		if err != nil {
			break
		}
		ticks = append(ticks, tickToMap(rec))
	}

	doc, err := json.Marshal(map[string]any{"ticks": ticks})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fdpinspect: failed to project recording to JSON: %v\n", err)
		return 2
	}

	result := gjson.GetBytes(doc, query)
	if !result.Exists() {
		fmt.Fprintf(os.Stderr, "fdpinspect: path %q matched nothing\n", query)
		return 1
	}
	fmt.Println(result.Raw)
	return 0
}

func tickToMap(rec recorder.TickRecord) map[string]any {
	ops := make([]map[string]any, 0, len(rec.Structural))
	for _, op := range rec.Structural {
		ops = append(ops, map[string]any{
			"kind":        op.Kind,
			"entityIndex": op.Entity.Index,
			"typeId":      op.TypeID,
			"payloadLen":  len(op.Payload),
		})
	}
	events := make([]map[string]any, 0, len(rec.Events))
	for _, ev := range rec.Events {
		events = append(events, map[string]any{"channel": ev.Channel, "payloadLen": len(ev.Payload)})
	}
	return map[string]any{
		"tick":       rec.Tick,
		"timeS":      rec.TimeS,
		"structural": ops,
		"events":     events,
	}
}
