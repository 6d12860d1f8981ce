package intent

import (
	"fmt"
	"slices"
	"strings"
)

const classifySystem = `You route messages sent to a workplace task assistant.
Answer with one JSON object and nothing else:
{"supported": bool, "intent": string, "confidence": number between 0 and 1, "mentions_person": bool, "rationale": string}

Supported intents:
- assign_task: give someone a task or piece of work
- view_performance: progress or pending work of the team or of a named person
- view_team: list who reports to the sender
- update_task_status: mark a task started, done, pending or reopened
- view_own_tasks: the sender's own pending tasks
- pending_tasks_ambiguous: asks about pending tasks without saying whose
- add_user: add a person to the directory
- delete_user: remove a person from the directory

Set mentions_person when the message names a specific person.
If nothing fits, set supported to false.`

const attachmentRule = `
A document is attached. Decide only from the message text, never from the document.
Only assign_task and update_task_status are possible with a document.`

func classifyPrompt(text string, hasAttachment bool) (system, prompt string) {
	system = classifySystem
	if hasAttachment {
		system += attachmentRule
	}
	return system, "Message:\n" + text
}

const extractSystem = `You extract parameters for a workplace task assistant.
Answer with one flat JSON object whose values are strings. Omit fields you cannot find.
Never invent values that the user did not state.`

func extractPrompt(in Intent, transcript string, known Params) (system, prompt string) {
	required, optional := in.Fields()

	var b strings.Builder
	fmt.Fprintf(&b, "Request type: %s\n", in)
	if len(required) > 0 {
		fmt.Fprintf(&b, "Required fields: %s\n", strings.Join(required, ", "))
	}
	if len(optional) > 0 {
		fmt.Fprintf(&b, "Optional fields: %s\n", strings.Join(optional, ", "))
	}
	if len(known) > 0 {
		b.WriteString("Already known:\n")
		for _, k := range slices.Concat(required, optional) {
			if v, ok := known[k]; ok {
				fmt.Fprintf(&b, "- %s: %s\n", k, v)
			}
		}
	}
	if in == UpdateTaskStatus {
		b.WriteString("status must be one of: pending, in_progress, completed\n")
	}
	if in == AssignTask {
		b.WriteString("deadline, when given, should be an ISO 8601 date or date-time\n")
	}
	b.WriteString("\nConversation:\n")
	b.WriteString(transcript)
	return extractSystem, b.String()
}

const continuitySystem = `You check whether a user's new message continues their current request to a workplace task assistant.
Answer with one JSON object and nothing else:
{"same_request": bool, "confidence": number between 0 and 1}
Answers to questions the assistant asked, corrections and added details continue the request.`

func continuityPrompt(active Intent, request, transcript, text string) (system, prompt string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Current request: %s (%q)\n\n", active.Describe(), request)
	if transcript != "" {
		b.WriteString("Conversation so far:\n")
		b.WriteString(transcript)
		b.WriteString("\n\n")
	}
	b.WriteString("New message:\n")
	b.WriteString(text)
	return continuitySystem, b.String()
}

const questionSystem = `You write one short, polite question for a workplace assistant.
Ask the user whether they want to keep going with their current request or switch to the new one.
Mention both in plain words. Do not use words like intent, classification or system.
Answer with the question only.`

func questionPrompt(active Intent, request, text string) (system, prompt string) {
	return questionSystem, fmt.Sprintf("Current request: %s (%q)\nNew message: %q", active.Describe(), request, text)
}

func fallbackQuestion(active Intent) string {
	return fmt.Sprintf("Just to confirm: would you like to continue with %s, or start something new?", active.Describe())
}
