package models

// QuestionDTO is the wire projection of a question. The correct letter is
// only included for the host; players never see it before the reveal.
type QuestionDTO struct {
	ID      string            `json:"id"`
	Text    string            `json:"question"`
	Answers map[string]string `json:"answers"`
	Correct string            `json:"correct,omitempty"` // host only
}

func (q Question) ToDTO(isHost bool) QuestionDTO {
	dto := QuestionDTO{
		ID:      q.ID,
		Text:    q.Text,
		Answers: q.Answers,
	}
	if isHost {
		dto.Correct = q.Correct
	}
	return dto
}

// PlayerDTO is the wire projection of a player, without the answer log.
type PlayerDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Connected bool   `json:"connected"`
}

func (p Player) ToDTO() PlayerDTO {
	return PlayerDTO{
		ID:        p.ID,
		Name:      p.Name,
		Score:     p.Score,
		Connected: p.Connected,
	}
}
