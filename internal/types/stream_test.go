package types

import "testing"

func TestDeltaBuildsDeltaEvent(t *testing.T) {
	ev := Delta("hi")
	if ev.Type != StreamDelta || ev.Content != "hi" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestReasoningEventBuildsReasoningEvent(t *testing.T) {
	ev := ReasoningEvent("thinking")
	if ev.Type != StreamReasoning || ev.Text != "thinking" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestErrorEventCarriesCodeAndMessage(t *testing.T) {
	ev := ErrorEvent("timeout", "deadline exceeded")
	if ev.Type != StreamError || ev.Error == nil {
		t.Fatal("expected an error payload")
	}
	if ev.Error.Code != "timeout" || ev.Error.Message != "deadline exceeded" {
		t.Fatalf("unexpected error payload: %+v", ev.Error)
	}
}

func TestDoneEventWrapsResponse(t *testing.T) {
	resp := &Response{Provider: "openai"}
	ev := DoneEvent(resp)
	if ev.Type != StreamDone || ev.Response != resp {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestToolEventWrapsToolCallEvent(t *testing.T) {
	ev := ToolEvent(ToolCallEvent{Type: ToolCallStart, CallID: "c1", Name: "search"})
	if ev.Type != StreamTool || ev.ToolEvent == nil {
		t.Fatal("expected a tool event payload")
	}
	if ev.ToolEvent.CallID != "c1" || ev.ToolEvent.Name != "search" {
		t.Fatalf("unexpected tool event: %+v", ev.ToolEvent)
	}
}
