package model

import (
	"strings"
	"time"
)

type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "SCHEDULED"
	AppointmentConfirmed AppointmentStatus = "CONFIRMED"
	AppointmentCancelled AppointmentStatus = "CANCELLED"
	AppointmentCompleted AppointmentStatus = "COMPLETED"
	AppointmentNoShow    AppointmentStatus = "NO_SHOW"
)

type Channel string

const (
	ChannelSMS   Channel = "SMS"
	ChannelEmail Channel = "EMAIL"
)

// ChannelPreference is the channel setting on an automation rule.
type ChannelPreference string

const (
	PreferSMS   ChannelPreference = "SMS"
	PreferEmail ChannelPreference = "EMAIL"
	PreferBoth  ChannelPreference = "BOTH"
)

type RuleType string

const (
	RuleReminder24h      RuleType = "REMINDER_24H"
	RuleReminder2h       RuleType = "REMINDER_2H"
	RuleFeedback1h       RuleType = "FEEDBACK_1H"
	RuleReviewFollowup48 RuleType = "REVIEW_FOLLOWUP_48H"
)

// ReminderRules are the rule types reconciled with supersede semantics.
var ReminderRules = []RuleType{RuleReminder24h, RuleReminder2h}

type JobStatus string

const (
	JobQueued  JobStatus = "QUEUED"
	JobClaimed JobStatus = "CLAIMED"
	JobSent    JobStatus = "SENT"
	JobSkipped JobStatus = "SKIPPED"
	JobFailed  JobStatus = "FAILED"
)

type Plan string

const (
	PlanStarter Plan = "STARTER"
	PlanPro     Plan = "PRO"
	PlanPremium Plan = "PREMIUM"
)

type BillingStatus string

const (
	BillingActive     BillingStatus = "ACTIVE"
	BillingTrialing   BillingStatus = "TRIALING"
	BillingPastDue    BillingStatus = "PAST_DUE"
	BillingCancelled  BillingStatus = "CANCELLED"
	BillingIncomplete BillingStatus = "INCOMPLETE"
)

type Business struct {
	ID              string
	Name            string
	Timezone        string
	Language        string
	GoogleReviewURL string
	OwnerEmail      string
}

// Location resolves the business time zone, falling back to UTC.
func (b Business) Location() *time.Location {
	tz := strings.TrimSpace(b.Timezone)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

type Customer struct {
	ID               string
	BusinessID       string
	FullName         string
	Phone            string
	Email            string
	ConsentSMS       bool
	ConsentEmail     bool
	OptedOutSMS      bool
	OptedOutEmail    bool
	UnsubscribeToken string
	DeletedAt        *time.Time
}

func (c Customer) Deleted() bool { return c.DeletedAt != nil }

type Appointment struct {
	ID           string
	BusinessID   string
	CustomerID   string
	LocationID   string
	ServiceName  string
	StartTime    time.Time
	EndTime      *time.Time
	Status       AppointmentStatus
	ConfirmToken string
	CancelToken  string
}

// AppointmentDetails is an appointment joined with its customer and business.
type AppointmentDetails struct {
	Appointment Appointment
	Customer    Customer
	Business    Business
}

type AutomationRule struct {
	ID           string
	BusinessID   string
	Type         RuleType
	Enabled      bool
	Channel      ChannelPreference
	TemplateID   string
	DelayMinutes *int
}

type MessageJob struct {
	ID                string
	BusinessID        string
	CustomerID        string
	AppointmentID     string
	RuleType          RuleType
	Channel           Channel
	SendAt            time.Time
	Status            JobStatus
	ProviderMessageID string
	ErrorReason       string
	SentAt            *time.Time
}

type MessageTemplate struct {
	ID         string
	BusinessID string
	RuleType   RuleType
	Channel    Channel
	Language   string
	Name       string
	Subject    string
	Body       string
	IsDefault  bool
}

type Feedback struct {
	ID            string
	BusinessID    string
	AppointmentID string
	CustomerID    string
	Rating        *int
	Comment       string
	Token         string
	SubmittedAt   *time.Time
}

type Billing struct {
	BusinessID            string
	Plan                  Plan
	Status                BillingStatus
	MessagesUsedThisMonth int
	UsagePeriodStart      *time.Time
	CurrentPeriodEnd      *time.Time
	StripeSubscriptionID  string
}
