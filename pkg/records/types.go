package records

// Pet is a registered animal belonging to an owner identity.
type Pet struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Species   string `json:"species"`
	Breed     string `json:"breed,omitempty"`
	BirthDate string `json:"birth_date,omitempty"`
}

// Consultation is one veterinary visit record.
type Consultation struct {
	ID     string `json:"id"`
	PetID  string `json:"pet_id"`
	Reason string `json:"reason"`
	Notes  string `json:"notes,omitempty"`
	Date   string `json:"date"`
}

// Vaccine is one applied-vaccine record.
type Vaccine struct {
	ID        string `json:"id"`
	PetID     string `json:"pet_id"`
	Name      string `json:"name"`
	AppliedAt string `json:"applied_at"`
	NextDue   string `json:"next_due,omitempty"`
}
