package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/nodues-api/internal/models"
	"github.com/noah-isme/nodues-api/pkg/email"
	"github.com/noah-isme/nodues-api/pkg/jobs"
)

// NotificationEvent names the workflow moment a student is told about.
type NotificationEvent string

const (
	NotificationRequestSubmitted   NotificationEvent = "request_submitted"
	NotificationDepartmentDecision NotificationEvent = "department_decision"
	NotificationStatusChanged      NotificationEvent = "status_changed"
)

// Notification is the payload of a queued notification job.
type Notification struct {
	Event         NotificationEvent
	RequestID     string
	StudentID     string
	DepartmentKey string
	Status        models.ClearanceStatus
	Remarks       string
}

type notificationStudentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// NotificationConfig sizes the delivery worker pool.
type NotificationConfig struct {
	Enabled    bool
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
	AppName    string
}

// NotificationService delivers workflow e-mails in the background. Failures are logged and never reach the
// caller.
type NotificationService struct {
	students notificationStudentLookup
	sender   email.Sender
	queue    *jobs.Queue
	logger   *zap.Logger
	appName  string
}

// NewNotificationService constructs the service. A disabled config yields a service whose Notify is a no-op.
func NewNotificationService(students notificationStudentLookup, sender email.Sender, logger *zap.Logger, cfg NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AppName == "" {
		cfg.AppName = "No-Dues Office"
	}
	svc := &NotificationService{students: students, sender: sender, logger: logger, appName: cfg.AppName}
	if cfg.Enabled && sender != nil && students != nil {
		svc.queue = jobs.NewQueue("notifications", svc.handle, jobs.QueueConfig{
			Workers:    cfg.Workers,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
			Logger:     logger,
		})
	}
	return svc
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	if s == nil || s.queue == nil {
		return
	}
	s.queue.Start(ctx)
}

// Stop waits for in-flight deliveries to finish.
func (s *NotificationService) Stop() {
	if s == nil || s.queue == nil {
		return
	}
	s.queue.Stop()
}

// Notify enqueues a notification without blocking.
func (s *NotificationService) Notify(n Notification) {
	if s == nil || s.queue == nil {
		return
	}
	job := jobs.Job{ID: uuid.NewString(), Type: string(n.Event), Payload: n}
	if err := s.queue.TryEnqueue(job); err != nil {
		s.logger.Warn("notification dropped",
			zap.String("event", string(n.Event)),
			zap.String("request_id", n.RequestID),
			zap.Error(err))
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(Notification)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}
	student, err := s.students.FindByID(ctx, n.StudentID)
	if err != nil {
		return fmt.Errorf("resolve student %s: %w", n.StudentID, err)
	}
	if strings.TrimSpace(student.Email) == "" {
		s.logger.Debug("student has no e-mail address", zap.String("student_id", student.ID))
		return nil
	}
	msg := s.render(n, student)
	if err := s.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s notification: %w", n.Event, err)
	}
	return nil
}

func (s *NotificationService) render(n Notification, student *models.Student) email.Message {
	to := []mail.Address{{Name: student.FullName, Address: student.Email}}
	var subject string
	var body strings.Builder
	fmt.Fprintf(&body, "Dear %s,\n\n", student.FullName)

	switch n.Event {
	case NotificationRequestSubmitted:
		subject = "Clearance request submitted"
		fmt.Fprintf(&body, "Your no-dues clearance request %s has been submitted and is awaiting department review.\n", n.RequestID)
	case NotificationDepartmentDecision:
		subject = fmt.Sprintf("Clearance update from %s", n.DepartmentKey)
		fmt.Fprintf(&body, "The %s department marked your clearance request %s as %s.\n", n.DepartmentKey, n.RequestID, n.Status)
		if n.Remarks != "" {
			fmt.Fprintf(&body, "Remarks: %s\n", n.Remarks)
		}
	default:
		subject = fmt.Sprintf("Clearance request %s", strings.ToLower(string(n.Status)))
		fmt.Fprintf(&body, "Your clearance request %s is now %s.\n", n.RequestID, n.Status)
		if n.Status == models.ClearanceStatusApproved {
			body.WriteString("You can now download your no-dues certificate.\n")
		}
	}
	fmt.Fprintf(&body, "\n%s\n", s.appName)
	return email.Message{To: to, Subject: subject, Text: body.String()}
}
