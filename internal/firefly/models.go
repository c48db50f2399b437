package firefly

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"budgetview/internal/core"
)

// Amount is a decimal amount as the server sends it. The API emits strings
// for most monetary fields but bare numbers in a few places, so both are accepted.
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	*a = Amount(n.String())
	return nil
}

// Money parses the amount into cents. Empty amounts are zero.
func (a Amount) Money() (core.Money, error) {
	if a == "" {
		return core.Money{}, nil
	}
	return core.ParseAmount(string(a))
}

// Page is one list response: the resources plus optional pagination metadata.
type Page[T any] struct {
	Data []T   `json:"data"`
	Meta *Meta `json:"meta,omitempty"`
}

type Meta struct {
	Pagination *Pagination `json:"pagination,omitempty"`
}

type Pagination struct {
	Total       int `json:"total"`
	Count       int `json:"count"`
	PerPage     int `json:"per_page"`
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

// Resource is the JSON:API envelope every entity is wrapped in.
type Resource[A any] struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Attributes A      `json:"attributes"`
}

type single[A any] struct {
	Data Resource[A] `json:"data"`
}

type Account = Resource[AccountAttributes]

type AccountAttributes struct {
	Name               string     `json:"name"`
	Type               string     `json:"type"`
	AccountRole        string     `json:"account_role,omitempty"`
	Active             bool       `json:"active"`
	CurrencyCode       string     `json:"currency_code"`
	CurrencySymbol     string     `json:"currency_symbol,omitempty"`
	CurrentBalance     Amount     `json:"current_balance"`
	CurrentBalanceDate *time.Time `json:"current_balance_date,omitempty"`
	IBAN               string     `json:"iban,omitempty"`
	IncludeNetWorth    bool       `json:"include_net_worth"`
}

type Transaction = Resource[TransactionGroup]

type TransactionGroup struct {
	GroupTitle   string             `json:"group_title,omitempty"`
	CreatedAt    *time.Time         `json:"created_at,omitempty"`
	Transactions []TransactionSplit `json:"transactions"`
}

type TransactionSplit struct {
	JournalID       string    `json:"transaction_journal_id"`
	Type            string    `json:"type"`
	Date            time.Time `json:"date"`
	Amount          Amount    `json:"amount"`
	Description     string    `json:"description"`
	CurrencyCode    string    `json:"currency_code"`
	CurrencySymbol  string    `json:"currency_symbol,omitempty"`
	SourceName      string    `json:"source_name,omitempty"`
	DestinationName string    `json:"destination_name,omitempty"`
	CategoryName    string    `json:"category_name,omitempty"`
	BudgetName      string    `json:"budget_name,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
}

type Budget = Resource[BudgetAttributes]

type BudgetAttributes struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
	Order  int    `json:"order"`
}

type BudgetLimit = Resource[BudgetLimitAttributes]

type BudgetLimitAttributes struct {
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	BudgetID       string    `json:"budget_id"`
	CurrencyCode   string    `json:"currency_code"`
	CurrencySymbol string    `json:"currency_symbol,omitempty"`
	Amount         Amount    `json:"amount"`
	Spent          Amount    `json:"spent"`
	Period         string    `json:"period,omitempty"`
}

type PiggyBank = Resource[PiggyBankAttributes]

type PiggyBankAttributes struct {
	Name           string  `json:"name"`
	AccountName    string  `json:"account_name,omitempty"`
	CurrencyCode   string  `json:"currency_code"`
	CurrencySymbol string  `json:"currency_symbol,omitempty"`
	TargetAmount   Amount  `json:"target_amount"`
	CurrentAmount  Amount  `json:"current_amount"`
	LeftToSave     Amount  `json:"left_to_save"`
	Percentage     float64 `json:"percentage"`
	TargetDate     string  `json:"target_date,omitempty"`
	Active         bool    `json:"active"`
}

type Recurrence = Resource[RecurrenceAttributes]

type RecurrenceAttributes struct {
	Type            string                  `json:"type"`
	Title           string                  `json:"title"`
	Description     string                  `json:"description,omitempty"`
	FirstDate       string                  `json:"first_date"`
	RepeatUntil     string                  `json:"repeat_until,omitempty"`
	NrOfRepetitions int                     `json:"nr_of_repetitions,omitempty"`
	Active          bool                    `json:"active"`
	Repetitions     []RecurrenceRepetition  `json:"repetitions"`
	Transactions    []RecurrenceTransaction `json:"transactions"`
}

type RecurrenceRepetition struct {
	Type        string   `json:"type"`
	Moment      string   `json:"moment"`
	Description string   `json:"description,omitempty"`
	Occurrences []string `json:"occurrences,omitempty"`
}

type RecurrenceTransaction struct {
	Description     string `json:"description"`
	Amount          Amount `json:"amount"`
	CurrencyCode    string `json:"currency_code"`
	SourceName      string `json:"source_name,omitempty"`
	DestinationName string `json:"destination_name,omitempty"`
}

// InsightEntry is one row of an insight report, e.g. expenses grouped by asset account.
type InsightEntry struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Difference      Amount  `json:"difference"`
	DifferenceFloat float64 `json:"difference_float"`
	CurrencyID      string  `json:"currency_id,omitempty"`
	CurrencyCode    string  `json:"currency_code"`
}

type User = Resource[UserAttributes]

type UserAttributes struct {
	Email   string `json:"email"`
	Role    string `json:"role,omitempty"`
	Blocked bool   `json:"blocked"`
}
