package main

import (
	"bytes"
	"context"
	"fmt"

	"chatwarden/internal/matcher"
	"chatwarden/internal/models"
	"chatwarden/internal/service"

	"gopkg.in/yaml.v3"
)

// RuleFile is the import format:
//
//	chats:
//	  - chat_id: -1001234567890
//	    rules:
//	      - type: BAN
//	        text: '(?i)casino'
//	        explanation: Gambling ads
//	        silent: false
type RuleFile struct {
	Chats []ChatRules `yaml:"chats"`
}

// ChatRules is one chat's block.
type ChatRules struct {
	ChatID int64       `yaml:"chat_id"`
	Rules  []RuleEntry `yaml:"rules"`
}

// RuleEntry is one rule to create.
type RuleEntry struct {
	Type        string `yaml:"type"`
	Text        string `yaml:"text"`
	Explanation string `yaml:"explanation"`
	Silent      bool   `yaml:"silent"`
}

// RuleCreator is the part of RulesService the import needs.
type RuleCreator interface {
	Create(ctx context.Context, chatID int64, in service.RuleInput) (*models.Rule, error)
}

// ParseRuleFile decodes YAML and rejects unknown keys.
func ParseRuleFile(raw []byte) (*RuleFile, error) {
	var f RuleFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	return &f, nil
}

// Count is the number of rules in the file.
func (f *RuleFile) Count() int {
	n := 0
	for _, c := range f.Chats {
		n += len(c.Rules)
	}
	return n
}

// Validate reports every problem at once, located by chat and rule index.
func (f *RuleFile) Validate(m matcher.Matcher) []string {
	var errs []string
	for i, c := range f.Chats {
		if c.ChatID == 0 {
			errs = append(errs, fmt.Sprintf("chats[%d]: chat_id is required", i))
		}
		for j, r := range c.Rules {
			at := fmt.Sprintf("chats[%d].rules[%d]", i, j)
			if _, err := models.ParseRuleType(r.Type); err != nil {
				errs = append(errs, at+": "+err.Error())
			}
			if r.Text == "" {
				errs = append(errs, at+": text is required")
				continue
			}
			if _, err := m.Matches(r.Text, ""); err != nil {
				errs = append(errs, at+": "+err.Error())
			}
		}
	}
	return errs
}

// Import creates every rule through the rules service. It stops at the first
// failure and reports how many were created before it.
func (f *RuleFile) Import(ctx context.Context, rules RuleCreator) (int, error) {
	created := 0
	for _, c := range f.Chats {
		for _, r := range c.Rules {
			_, err := rules.Create(ctx, c.ChatID, service.RuleInput{
				RuleText:        r.Text,
				ExplanationText: r.Explanation,
				Type:            r.Type,
				IsSilent:        r.Silent,
			})
			if err != nil {
				return created, fmt.Errorf("chat %d: %w", c.ChatID, err)
			}
			created++
		}
	}
	return created, nil
}
