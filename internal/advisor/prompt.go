package advisor

import (
	"encoding/json"
	"fmt"

	"futures_orchestrator/internal/core"
)

const systemPrompt = "You are a professional crypto trader. " +
	"Analyze market data and output ONLY valid JSON. " +
	"No prose. No markdown. If no trade, return {\"coins\":[]}."

const userPromptTemplate = "The 15m data below covers each instrument. " +
	"Analyze it as a professional trader, combining price action, higher timeframes (1H/4H) and the leader bias. " +
	"Only enter when confidence is high and the risk/reward ratio is good. " +
	"Return a single JSON object with three take-profit levels tp1,tp2,tp3 plus conf (0-10) and rr (reward/risk) " +
	"shaped {\"coins\":[{\"pair\":\"SYMBOL\",\"entry\":0.0,\"sl\":0.0,\"tp1\":0.0,\"tp2\":0.0,\"tp3\":0.0,\"conf\":0,\"rr\":0.0}]}. " +
	"No signal -> {\"coins\":[]}. " +
	"DATA:%s"

// buildUserPrompt serializes the payload into the user message
func buildUserPrompt(payload core.AdvisoryPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal advisory payload: %w", err)
	}
	return fmt.Sprintf(userPromptTemplate, string(data)), nil
}

// responseSchema constrains the model output to the trade list shape
func responseSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "json_schema",
		"json_schema": map[string]interface{}{
			"name": "trade_list",
			"schema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"coins": map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"pair":  map[string]interface{}{"type": "string"},
								"entry": map[string]interface{}{"type": "number"},
								"sl":    map[string]interface{}{"type": "number"},
								"tp1":   map[string]interface{}{"type": "number"},
								"tp2":   map[string]interface{}{"type": "number"},
								"tp3":   map[string]interface{}{"type": "number"},
								"conf":  map[string]interface{}{"type": "number"},
								"rr":    map[string]interface{}{"type": "number"},
							},
							"required": []string{"pair", "entry", "sl", "tp1", "tp2", "tp3", "conf"},
						},
					},
				},
				"required":             []string{"coins"},
				"additionalProperties": false,
			},
		},
	}
}
