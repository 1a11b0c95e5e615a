package resumes

import (
	"strconv"
	"time"
)

// ResumeResponse is the outward-facing representation of a resume.
type ResumeResponse struct {
	ResumeID  string    `json:"resumeId"`
	Payload   Document  `json:"payload"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toResponse(r Resume) ResumeResponse {
	payload := r.Payload
	if payload == nil {
		payload = Document{}
	}
	return ResumeResponse{
		ResumeID:  r.ID,
		Payload:   payload,
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func toResponses(list []Resume) []ResumeResponse {
	out := make([]ResumeResponse, 0, len(list))
	for _, r := range list {
		out = append(out, toResponse(r))
	}
	return out
}

func etag(version int64) string {
	return strconv.Quote(strconv.FormatInt(version, 10))
}
