package tools

import (
	"context"
	"log/slog"
	"strings"

	"github.com/eimkon/eimkon/pkg/provider/s2s"
)

// LessonCommand is a lesson-audio control verb addressed to whichever
// component currently owns lesson playback.
type LessonCommand string

// Known lesson-audio verbs. Other verbs are forwarded unchanged; the consumer
// decides what to do with them.
const (
	LessonPlay  LessonCommand = "play"
	LessonPause LessonCommand = "pause"
	LessonStop  LessonCommand = "stop"
)

// LessonCommands returns the receive side of the lesson-audio command queue.
// The dispatcher never blocks on it: when the queue is full the command is
// dropped and logged.
func (d *Dispatcher) LessonCommands() <-chan LessonCommand {
	return d.lessons
}

func (d *Dispatcher) lessonAudioTool() Tool {
	return Tool{
		Definition: s2s.ToolDefinition{
			Name:        "lesson_audio",
			Description: "Ochiq darsni ovozli o'qishni boshqarish: play, pause yoki stop.",
			Parameters:  objectSchema(map[string]string{"action": "string"}),
		},
		Handler: func(_ context.Context, args map[string]any) (string, bool) {
			cmd := LessonCommand(strings.ToLower(strings.TrimSpace(stringArg(args, "action"))))
			select {
			case d.lessons <- cmd:
			default:
				slog.Warn("tools: lesson command queue full, dropping", "action", cmd)
			}
			return DefaultResult, true
		},
	}
}
