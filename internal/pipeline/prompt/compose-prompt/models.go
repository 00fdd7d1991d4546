// internal/pipeline/prompt/compose-prompt/models.go
package composeprompt

import "github.com/sbgadvisor/WellNavigator2/internal/models"

type Input struct {
	History   []models.Message          `json:"history"`
	UserInput string                    `json:"userInput"`
	Retrieved []models.RetrievedPassage `json:"retrieved,omitempty"`
	Web       []models.RetrievedPassage `json:"web,omitempty"`
	Settings  models.Settings           `json:"settings"`
}

type Output struct {
	Messages  []models.Message  `json:"messages"`
	Citations []models.Citation `json:"citations"`
}
