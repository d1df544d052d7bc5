package intake

import "time"

// Answer field names. These double as the keys of Conversation.Answers and
// the column names the review workflow reads at handoff.
const (
	FieldFirstName        = "firstName"
	FieldLastName         = "lastName"
	FieldEmail            = "email"
	FieldPhone            = "phone"
	FieldPrimaryGoal      = "primaryGoal"
	FieldExperienceLevel  = "experienceLevel"
	FieldMonthlyVolume    = "monthlyVolume"
	FieldCurrentMargin    = "currentMargin"
	FieldMonthlyExpenses  = "monthlyExpenses"
	FieldBiggestChallenge = "biggestChallenge"
)

// InputKind hints the presentation layer which widget to render. The engine
// itself treats every answer as text.
type InputKind string

const (
	InputText   InputKind = "text"
	InputEmail  InputKind = "email"
	InputPhone  InputKind = "phone"
	InputSelect InputKind = "select"
	InputNumber InputKind = "number"
)

// Step describes one question in the guided intake sequence. Prompt and Help
// may reference earlier answers with {field} placeholders.
type Step struct {
	Field       string
	Prompt      string
	Help        string
	Kind        InputKind
	Validator   string
	Suggestions []string
}

// ScriptedMessage is one line of a scripted bot sequence. Delay is a pacing
// hint for the presentation layer; the engine appends the whole sequence at
// once.
type ScriptedMessage struct {
	Text  string
	Delay time.Duration
}

// Steps is the fixed question sequence for the P&L Challenge intake.
var Steps = []Step{
	{
		Field:     FieldFirstName,
		Prompt:    "Hi there! I'm here to get your P&L Challenge started. First things first — what's your first name?",
		Help:      "Just your first name is fine. We use it to keep things personal.",
		Kind:      InputText,
		Validator: ValidateShortText,
	},
	{
		Field:     FieldLastName,
		Prompt:    "Great to meet you, {firstName}! And your last name?",
		Help:      "Your family name, as it would appear on your license.",
		Kind:      InputText,
		Validator: ValidateShortText,
	},
	{
		Field:     FieldEmail,
		Prompt:    "Thanks, {firstName}. What's the best email address to reach you at?",
		Help:      "This is where we'll send your challenge results and account details — something like you@company.com.",
		Kind:      InputEmail,
		Validator: ValidateEmail,
	},
	{
		Field:  FieldPhone,
		Prompt: "Got it. What's a good phone number for you? You can type skip if you'd rather not share one.",
		Help:   "A phone number is optional — type skip to move on.",
		Kind:   InputPhone,
	},
	{
		Field:     FieldPrimaryGoal,
		Prompt:    "What's your primary goal right now, {firstName}?",
		Help:      "Pick one of the suggestions or describe your goal in your own words.",
		Kind:      InputSelect,
		Validator: ValidateShortText,
		Suggestions: []string{
			"Increase monthly income",
			"Build long-term wealth",
			"Grow my deal flow",
			"Cut my costs",
		},
	},
	{
		Field:     FieldExperienceLevel,
		Prompt:    "How long have you been in the mortgage business?",
		Help:      "A rough range is all we need.",
		Kind:      InputSelect,
		Validator: ValidateShortText,
		Suggestions: []string{
			"Less than 2 years",
			"2-5 years",
			"5-10 years",
			"10+ years",
		},
	},
	{
		Field:     FieldMonthlyVolume,
		Prompt:    "How many loans do you close in a typical month?",
		Help:      "A whole number is fine — your best estimate works.",
		Kind:      InputNumber,
		Validator: ValidatePositiveNumber,
	},
	{
		Field:     FieldCurrentMargin,
		Prompt:    "Roughly what margin are you earning per loan right now, in basis points?",
		Help:      "If you're not sure, 100 basis points is 1% of the loan amount. A ballpark figure is fine.",
		Kind:      InputNumber,
		Validator: ValidatePositiveNumber,
	},
	{
		Field:     FieldMonthlyExpenses,
		Prompt:    "About how much do you spend on monthly business expenses, in dollars?",
		Help:      "Desk fees, tech, marketing — everything it costs you to operate each month. Zero is a valid answer.",
		Kind:      InputNumber,
		Validator: ValidateNonNegativeNumber,
	},
	{
		Field:     FieldBiggestChallenge,
		Prompt:    "Last one, {firstName}: what's the biggest challenge holding your business back right now?",
		Help:      "A sentence or two in your own words — the more specific, the better we can help.",
		Kind:      InputText,
		Validator: ValidateLongText,
	},
}

// Welcome is the scripted opener played before the first question.
var Welcome = []ScriptedMessage{
	{Text: "Welcome to the BFFLender P&L Challenge!", Delay: 0},
	{Text: "We'll ask a few quick questions about your business, then show you what you could be keeping with a better margin structure.", Delay: 900 * time.Millisecond},
	{Text: "It takes about two minutes, and you can type help at any point.", Delay: 1800 * time.Millisecond},
}

// Completion is the scripted closer played after the last answer is accepted.
var Completion = []ScriptedMessage{
	{Text: "That's everything — thanks, {firstName}!", Delay: 0},
	{Text: "Here's what we have: {firstName} {lastName}, closing {monthlyVolume} loans a month at {currentMargin} bps with {monthlyExpenses} in monthly expenses. Goal: {primaryGoal}.", Delay: 900 * time.Millisecond},
	{Text: "Your challenge has been submitted for review. We'll send your results and next steps to {email} shortly.", Delay: 1800 * time.Millisecond},
}

// EscalationSuggestions are offered once a visitor has struggled with the
// same question repeatedly.
var EscalationSuggestions = []string{
	"Talk to a human",
	"Skip this question",
	"Let me explain differently",
}
