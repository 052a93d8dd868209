package domain

// ParticipantUser is the read-only profile projection shown to partners.
type ParticipantUser struct {
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Description string `json:"description,omitempty"`
}

type Group struct {
	ID           string            `json:"id"`
	Number       int               `json:"number"`
	Color        string            `json:"color"`
	Participants []ParticipantUser `json:"participants"`
}

// GroupActivity is the pairing result for a partner-type activity. The
// server produces at most one per activity; a participant belongs to at
// most one group within it.
type GroupActivity struct {
	ID         string  `json:"id"`
	ActivityID string  `json:"activityId"`
	EventID    string  `json:"eventId"`
	Groups     []Group `json:"groups"`
	Share      bool    `json:"share"`
}

// GroupOf returns the group containing userID, if any.
func (ga *GroupActivity) GroupOf(userID string) (*Group, bool) {
	if ga == nil {
		return nil, false
	}
	for i := range ga.Groups {
		for _, p := range ga.Groups[i].Participants {
			if p.UserID == userID {
				return &ga.Groups[i], true
			}
		}
	}
	return nil, false
}

// PartnerFor returns the first other participant in userID's group.
func (ga *GroupActivity) PartnerFor(userID string) (ParticipantUser, bool) {
	group, ok := ga.GroupOf(userID)
	if !ok {
		return ParticipantUser{}, false
	}
	for _, p := range group.Participants {
		if p.UserID != userID {
			return p, true
		}
	}
	return ParticipantUser{}, false
}
