package engine

// --- initialize ---

type InitializeInput struct {
	VideoID string `json:"video_id,omitempty" jsonschema:"YouTube video id or watch URL"`
}

type InitializeOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	VideoID string `json:"video_id"`
}

// --- chat ---

type ChatInput struct {
	VideoID  string `json:"video_id,omitempty" jsonschema:"YouTube video id or watch URL"`
	Question string `json:"question,omitempty" jsonschema:"Question to answer from the video transcript"`
}

type ChatOutput struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
}

// --- misc ---

type ErrorOutput struct {
	Error string `json:"error"`
}

type HealthOutput struct {
	Status string `json:"status"`
}
