// Package streamhost sits between a streaming LLM and a tool backend: it
// classifies model output into narrative text and embedded JSON tool calls
// as fragments arrive, executes the calls, and orchestrates multi-round
// conversations with retry and temperature annealing.
//
// # Overview
//
// Models that emit tool calls as inline JSON force a choice: buffer the
// whole response (high latency) or stream it raw (tool JSON leaks to the
// user). The classifier here resolves that with bounded lookahead: narrative
// streams through with at most a small buffering delay, while complete
// balanced tool-call objects are diverted to execution.
//
// Three layers, each usable alone:
//
//   - Classifier: a push-based state machine. Feed it fragments, get back
//     display tokens and parsed tool calls.
//   - Pipeline: wires a live fragment channel through the classifier and
//     fans out into independent display and tool-execution loops.
//   - Host: full turn orchestration — prompt, extract, execute, re-prompt
//     with results, retry failed attempts at annealed temperature.
//
// # Example
//
//	host := streamhost.NewHost(gen, backend,
//	    streamhost.WithRetryStrategy(streamhost.DefaultRetryStrategy()),
//	)
//	result, err := host.ProcessMessage(ctx, "list the files in /tmp")
//	if err != nil { ... }
//	fmt.Println(result.Text)
//
// See Classifier and Pipeline for the streaming path, and Host for
// complete turns.
package streamhost
