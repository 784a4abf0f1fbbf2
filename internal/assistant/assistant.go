// Package assistant is the staff chat assistant. A language model reads the
// conversation and may call booking tools; tool results are fed back until the
// model answers in text.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-booking/internal/apperr"
	"github.com/wolfman30/clinic-booking/internal/tenancy"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	defaultMaxRounds = 3
	fallbackReply    = "Désolé, je n'ai pas pu traiter votre demande."
)

var assistantTracer = otel.Tracer("clinic.internal.assistant")

// Message is one turn of the staff conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Reply is what the model returned for one exchange.
type Reply struct {
	Text  string
	Calls []ToolCall
}

// Setup opens a chat.
type Setup struct {
	System  string
	Tools   []ToolSpec
	History []Message
}

// ChatModel starts chats with a language model.
type ChatModel interface {
	StartChat(setup Setup) ChatSession
}

// ChatSession is one stateful conversation with the model.
type ChatSession interface {
	Send(ctx context.Context, text string) (Reply, error)
	SendToolResults(ctx context.Context, results []ToolResult) (Reply, error)
}

// Config bounds model calls.
type Config struct {
	GatewayTimeout time.Duration
	MaxRounds      int
	ClinicName     string
}

// Response is returned to the portal.
type Response struct {
	Content   string       `json:"content"`
	ToolCalls []ToolRecord `json:"tool_calls,omitempty"`
}

// ToolRecord reports a tool the model ran during the exchange.
type ToolRecord struct {
	Name   string         `json:"name"`
	Args   map[string]any `json:"args,omitempty"`
	Result map[string]any `json:"result"`
}

// Assistant drives the tool loop.
type Assistant struct {
	model  ChatModel
	tools  *Toolbox
	cfg    Config
	logger *logging.Logger
	now    func() time.Time
}

// New creates an assistant.
func New(model ChatModel, tools *Toolbox, cfg Config, logger *logging.Logger) *Assistant {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 30 * time.Second
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = defaultMaxRounds
	}
	return &Assistant{model: model, tools: tools, cfg: cfg, logger: logger, now: time.Now}
}

// Chat answers the last user message. Earlier messages become model history.
func (a *Assistant) Chat(ctx context.Context, messages []Message) (Response, error) {
	ctx, span := assistantTracer.Start(ctx, "assistant.chat")
	defer span.End()

	if len(messages) == 0 {
		return Response{}, apperr.New(apperr.KindInvalidInput, "assistant.chat", "messages are required").WithField("field", "messages")
	}
	last := messages[len(messages)-1]
	if last.Role != RoleUser || strings.TrimSpace(last.Content) == "" {
		return Response{}, apperr.New(apperr.KindInvalidInput, "assistant.chat", "last message must be a non-empty user message").WithField("field", "messages")
	}
	for _, m := range messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return Response{}, apperr.New(apperr.KindInvalidInput, "assistant.chat", "unknown role "+m.Role).WithField("field", "messages")
		}
	}

	staff, _ := tenancy.StaffFromContext(ctx)
	span.SetAttributes(attribute.String("clinic.doctor_id", staff.DoctorID))

	session := a.model.StartChat(Setup{
		System:  a.systemPrompt(staff),
		Tools:   Specs(),
		History: messages[:len(messages)-1],
	})

	reply, err := a.send(ctx, func(ctx context.Context) (Reply, error) {
		return session.Send(ctx, last.Content)
	})
	if err != nil {
		span.RecordError(err)
		return Response{}, err
	}

	var records []ToolRecord
	for round := 0; len(reply.Calls) > 0; round++ {
		if round >= a.cfg.MaxRounds {
			a.logger.Warn("assistant tool rounds exhausted", "doctor_id", staff.DoctorID, "rounds", round)
			reply = Reply{}
			break
		}
		results := make([]ToolResult, 0, len(reply.Calls))
		for _, call := range reply.Calls {
			a.logger.Info("executing assistant tool", "tool", call.Name, "doctor_id", staff.DoctorID)
			result := a.tools.Execute(ctx, call)
			results = append(results, result)
			records = append(records, ToolRecord{Name: call.Name, Args: call.Args, Result: result.Response})
		}
		reply, err = a.send(ctx, func(ctx context.Context) (Reply, error) {
			return session.SendToolResults(ctx, results)
		})
		if err != nil {
			span.RecordError(err)
			return Response{ToolCalls: records}, err
		}
	}

	content := strings.TrimSpace(reply.Text)
	if content == "" {
		content = fallbackReply
	}
	return Response{Content: content, ToolCalls: records}, nil
}

func (a *Assistant) send(ctx context.Context, fn func(context.Context) (Reply, error)) (Reply, error) {
	gctx, cancel := context.WithTimeout(ctx, a.cfg.GatewayTimeout)
	defer cancel()
	reply, err := fn(gctx)
	if err == nil {
		return reply, nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return Reply{}, err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(gctx.Err(), context.DeadlineExceeded) {
		return Reply{}, apperr.Transient("assistant.gateway", err)
	}
	return Reply{}, apperr.Wrap(apperr.KindExternalChannel, "assistant.gateway", err)
}

func (a *Assistant) systemPrompt(staff tenancy.Staff) string {
	clinic := a.cfg.ClinicName
	if clinic == "" {
		clinic = "une clinique médicale au Maroc"
	}
	doctor := staff.DoctorID
	if doctor == "" {
		doctor = "non spécifié"
	}
	clinicID := staff.ClinicID
	if clinicID == "" {
		clinicID = "non spécifié"
	}
	return fmt.Sprintf(`Tu es l'assistant virtuel de %s. Tu parles uniquement en français.

Tu peux aider avec:
- Créer des rendez-vous (demande le nom du patient, la date et l'heure)
- Rechercher des patients par nom ou téléphone
- Consulter les rendez-vous d'un jour donné
- Annuler des rendez-vous

Quand tu dois exécuter une action, utilise les outils disponibles. Si un créneau n'est pas disponible, explique pourquoi et propose un autre horaire. Sois concis et professionnel.
Aujourd'hui nous sommes le %s.

Contexte:
- ID du docteur: %s
- ID de la clinique: %s`, clinic, a.now().In(a.tools.svc.Location()).Format("Monday 2006-01-02"), doctor, clinicID)
}
