/*
Package chatgraph executes conversational agent turns as a small state
machine: a chat node calls the model, a conditional edge routes on
whether the response requests tools, a tool node runs the requested
tools, and the loop repeats until the model produces a plain answer.

# Overview

chatgraph turns one user message into a terminal assistant answer while
persisting conversation state after every node, so a crashed or
restarted process resumes mid-turn instead of losing history.

Core pieces:
  - Executor drives the chat/tools loop and owns persistence
  - checkpoint.Store versions conversation snapshots (memory or SQLite)
  - llm.FallbackClient tries model candidates in order with retries,
    circuit breakers, and rate limiting
  - tool.Registry validates tool arguments against JSON Schemas and
    isolates handler failures

# Basic Usage

Register tools, wire a model chain, and run turns:

	store := checkpoint.NewMemoryStore()

	tools := tool.NewRegistry()
	tools.MustRegister(weatherSpec)

	model, err := llm.NewFallback([]llm.Candidate{
	    {Provider: "openai", Model: "gpt-4o", Client: llm.NewOpenAIClient(apiKey)},
	})
	if err != nil {
	    log.Fatal(err)
	}

	exec, err := chatgraph.New(store, model, tools,
	    chatgraph.WithSystemPrompt("You are a helpful assistant."),
	    chatgraph.WithMaxToolRounds(8),
	)
	if err != nil {
	    log.Fatal(err)
	}

	answer, err := exec.Run(ctx, "conv-123", "What's the weather in Paris?")
	if err != nil {
	    log.Fatal(err)
	}
	fmt.Println(answer.Content)

# Streaming

Attach a sink to observe incremental output. A retried model attempt
resets the sink, so the consumer never sees duplicated partial output:

	sink := &chatgraph.BufferSink{}
	answer, err := exec.Run(ctx, "conv-123", "Tell me a story",
	    chatgraph.WithSink(sink))

# Failure Modes

Run returns typed errors: *StorageError when the checkpoint store is
unreachable, *ModelUnavailableError when every model candidate is
exhausted (state is persisted up to the last successful node, so the
next attempt resumes), *LoopBoundError when the chat/tool cycle hits
the configured bound, and *ConflictError when a concurrent writer won
the persist race. Tool failures are recoverable and never abort the
turn; the model receives them as error-content tool messages and
decides how to proceed.
*/
package chatgraph
