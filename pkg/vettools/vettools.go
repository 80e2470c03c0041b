// Package vettools registers the veterinary capabilities offered to the
// model: pet registration, consultation and vaccine records, and clinic
// search. Each capability wraps an external collaborator; collaborators
// that are not configured leave their tools unregistered.
package vettools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HackAi2025-Paws/paws-wpp-sub000/pkg/clinics"
	"github.com/HackAi2025-Paws/paws-wpp-sub000/pkg/records"
	"github.com/HackAi2025-Paws/paws-wpp-sub000/pkg/tools"
)

// PetDirectory manages pet records for an owner identity.
type PetDirectory interface {
	RegisterPet(ctx context.Context, identity string, pet records.Pet) (records.Pet, error)
	ListPets(ctx context.Context, identity string) ([]records.Pet, error)
}

// ConsultationLog manages veterinary consultation records.
type ConsultationLog interface {
	RecordConsultation(ctx context.Context, identity string, consultation records.Consultation) (records.Consultation, error)
	ConsultationHistory(ctx context.Context, petID string) ([]records.Consultation, error)
}

// VaccineBook manages vaccine records.
type VaccineBook interface {
	RecordVaccine(ctx context.Context, identity string, vaccine records.Vaccine) (records.Vaccine, error)
	VaccineCard(ctx context.Context, petID string) ([]records.Vaccine, error)
}

// ClinicFinder searches for nearby veterinary clinics.
type ClinicFinder interface {
	FindClinics(ctx context.Context, query string, limit int) ([]clinics.Clinic, error)
}

// Collaborators holds the external dependencies tools are built over.
// Nil fields disable the corresponding tools.
type Collaborators struct {
	Pets          PetDirectory
	Consultations ConsultationLog
	Vaccines      VaccineBook
	Clinics       ClinicFinder
}

// Register adds every tool whose collaborator is configured.
func Register(registry *tools.Registry, deps Collaborators) error {
	if registry == nil {
		return errors.New("tool registry is required")
	}

	var defs []tools.Definition
	if deps.Pets != nil {
		defs = append(defs, registerPetTool(deps.Pets), listPetsTool(deps.Pets))
	}
	if deps.Consultations != nil {
		defs = append(defs, recordConsultationTool(deps.Consultations), consultationHistoryTool(deps.Consultations))
	}
	if deps.Vaccines != nil {
		defs = append(defs, recordVaccineTool(deps.Vaccines), vaccineCardTool(deps.Vaccines))
	}
	if deps.Clinics != nil {
		defs = append(defs, findClinicsTool(deps.Clinics))
	}

	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", def.Name, err)
		}
	}
	return nil
}

func registerPetTool(pets PetDirectory) tools.Definition {
	return tools.Definition{
		Name:        "register_pet",
		Description: "Register a new pet for the current owner. Use when the owner introduces an animal that is not on file yet.",
		Parameters: []tools.Parameter{
			{Name: "name", Type: "string", Description: "Pet name", Required: true},
			{Name: "species", Type: "string", Description: "Species, e.g. perro, gato", Required: true},
			{Name: "breed", Type: "string", Description: "Breed if known", Required: false},
			{Name: "birth_date", Type: "string", Description: "Birth date, YYYY-MM-DD", Required: false},
		},
		Handler: func(ctx context.Context, input map[string]interface{}, execCtx *tools.ExecutionContext) (interface{}, error) {
			pet := records.Pet{
				Name:      stringArg(input, "name"),
				Species:   stringArg(input, "species"),
				Breed:     stringArg(input, "breed"),
				BirthDate: stringArg(input, "birth_date"),
			}
			return pets.RegisterPet(ctx, execCtx.Identity, pet)
		},
	}
}

func listPetsTool(pets PetDirectory) tools.Definition {
	return tools.Definition{
		Name:        "list_pets",
		Description: "List the pets registered to the current owner.",
		Parameters:  []tools.Parameter{},
		Handler: func(ctx context.Context, input map[string]interface{}, execCtx *tools.ExecutionContext) (interface{}, error) {
			return pets.ListPets(ctx, execCtx.Identity)
		},
	}
}

func recordConsultationTool(consultations ConsultationLog) tools.Definition {
	return tools.Definition{
		Name:        "record_consultation",
		Description: "Record a veterinary consultation for one of the owner's pets.",
		Parameters: []tools.Parameter{
			{Name: "pet_id", Type: "string", Description: "Pet identifier from list_pets", Required: true},
			{Name: "reason", Type: "string", Description: "Reason for the visit", Required: true},
			{Name: "notes", Type: "string", Description: "Clinical notes", Required: false},
			{Name: "date", Type: "string", Description: "Visit date, YYYY-MM-DD; today if omitted", Required: false},
		},
		Handler: func(ctx context.Context, input map[string]interface{}, execCtx *tools.ExecutionContext) (interface{}, error) {
			date := stringArg(input, "date")
			if date == "" {
				date = time.Now().Format("2006-01-02")
			}
			consultation := records.Consultation{
				PetID:  stringArg(input, "pet_id"),
				Reason: stringArg(input, "reason"),
				Notes:  stringArg(input, "notes"),
				Date:   date,
			}
			return consultations.RecordConsultation(ctx, execCtx.Identity, consultation)
		},
	}
}

func consultationHistoryTool(consultations ConsultationLog) tools.Definition {
	return tools.Definition{
		Name:        "consultation_history",
		Description: "Look up past veterinary consultations for a pet.",
		Parameters: []tools.Parameter{
			{Name: "pet_id", Type: "string", Description: "Pet identifier from list_pets", Required: true},
		},
		Handler: func(ctx context.Context, input map[string]interface{}, execCtx *tools.ExecutionContext) (interface{}, error) {
			return consultations.ConsultationHistory(ctx, stringArg(input, "pet_id"))
		},
	}
}

func recordVaccineTool(vaccines VaccineBook) tools.Definition {
	return tools.Definition{
		Name:        "record_vaccine",
		Description: "Record a vaccine applied to one of the owner's pets.",
		Parameters: []tools.Parameter{
			{Name: "pet_id", Type: "string", Description: "Pet identifier from list_pets", Required: true},
			{Name: "vaccine", Type: "string", Description: "Vaccine name, e.g. antirrábica", Required: true},
			{Name: "applied_at", Type: "string", Description: "Application date, YYYY-MM-DD; today if omitted", Required: false},
			{Name: "next_due", Type: "string", Description: "Next due date, YYYY-MM-DD", Required: false},
		},
		Handler: func(ctx context.Context, input map[string]interface{}, execCtx *tools.ExecutionContext) (interface{}, error) {
			appliedAt := stringArg(input, "applied_at")
			if appliedAt == "" {
				appliedAt = time.Now().Format("2006-01-02")
			}
			vaccine := records.Vaccine{
				PetID:     stringArg(input, "pet_id"),
				Name:      stringArg(input, "vaccine"),
				AppliedAt: appliedAt,
				NextDue:   stringArg(input, "next_due"),
			}
			return vaccines.RecordVaccine(ctx, execCtx.Identity, vaccine)
		},
	}
}

func vaccineCardTool(vaccines VaccineBook) tools.Definition {
	return tools.Definition{
		Name:        "vaccine_card",
		Description: "Show the vaccine card (applied vaccines and due dates) for a pet.",
		Parameters: []tools.Parameter{
			{Name: "pet_id", Type: "string", Description: "Pet identifier from list_pets", Required: true},
		},
		Handler: func(ctx context.Context, input map[string]interface{}, execCtx *tools.ExecutionContext) (interface{}, error) {
			return vaccines.VaccineCard(ctx, stringArg(input, "pet_id"))
		},
	}
}

func findClinicsTool(finder ClinicFinder) tools.Definition {
	return tools.Definition{
		Name:        "find_clinics",
		Description: "Search for veterinary clinics near a neighbourhood or city.",
		Parameters: []tools.Parameter{
			{Name: "query", Type: "string", Description: "Neighbourhood, city, or free-text location", Required: true},
			{Name: "limit", Type: "integer", Description: "Maximum results, default 5", Required: false},
		},
		// The search provider answers fast or not at all; a long timeout
		// only stalls the conversation.
		Policy: &tools.ExecPolicy{Timeout: 5 * time.Second, Retries: tools.Int(1), RetryDelay: tools.Duration(500 * time.Millisecond)},
		Handler: func(ctx context.Context, input map[string]interface{}, execCtx *tools.ExecutionContext) (interface{}, error) {
			limit := 0
			if v, ok := input["limit"].(float64); ok {
				limit = int(v)
			}
			return finder.FindClinics(ctx, stringArg(input, "query"), limit)
		},
	}
}

func stringArg(input map[string]interface{}, name string) string {
	v, _ := input[name].(string)
	return v
}
