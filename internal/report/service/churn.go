package service

import (
	"math"
	"time"

	customermodels "gestionale/internal/customer/models"
	"gestionale/internal/report/models"
	"gestionale/pkg/money"
)

// Fixed heuristic weights: inactivity and open tickets raise the risk,
// longer subscriptions and higher revenue lower it.
const (
	churnBias         = -1.2
	churnDaysWeight   = 0.03
	churnMonthsWeight = -0.05
	churnMRRWeight    = -0.002
	churnTicketWeight = 0.25

	maxDaysInactive = 365
	maxMonths       = 48
	maxMRR          = 10000
	maxTickets      = 20

	inactivityWindowDays = 120
	defaultDaysInactive  = 90
	defaultMonths        = 6
)

// ChurnScore is a logistic risk score in [0, 1] rounded to four decimals.
func ChurnScore(in models.ChurnInput) float64 {
	z := churnBias +
		churnDaysWeight*float64(min(in.DaysInactive, maxDaysInactive)) +
		churnMonthsWeight*float64(min(in.Months, maxMonths)) +
		churnMRRWeight*math.Min(in.MRR.Float(), maxMRR) +
		churnTicketWeight*float64(min(in.TicketsOpen, maxTickets))
	score := 1 / (1 + math.Exp(-z))
	return math.Round(score*10000) / 10000
}

// churnInput derives the score features of one customer.
func churnInput(c customermodels.Customer, subs []models.ActiveSubscription, ticketsOpen int, now time.Time) models.ChurnInput {
	in := models.ChurnInput{
		DaysInactive: defaultDaysInactive,
		Months:       defaultMonths,
		TicketsOpen:  ticketsOpen,
	}
	if c.JoinedAt != nil {
		days := max(0, int(now.Sub(*c.JoinedAt).Hours()/24))
		in.DaysInactive = max(0, inactivityWindowDays-min(inactivityWindowDays, days))
	}
	if len(subs) > 0 {
		total := 0
		var mrr money.Cents
		for _, s := range subs {
			total += s.Months
			mrr += s.Monthly
		}
		in.Months = int(math.Round(float64(total) / float64(len(subs))))
		in.MRR = mrr
	}
	return in
}
