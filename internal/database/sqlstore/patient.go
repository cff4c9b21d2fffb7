package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/carecam/internal/database"
)

// PatientRepository reads the patient record.
type PatientRepository struct {
	pool *Pool
}

func NewPatientRepository(pool *Pool) *PatientRepository {
	return &PatientRepository{pool: pool}
}

// GetPatient returns the first patient row.
func (r *PatientRepository) GetPatient(ctx context.Context) (*database.Patient, error) {
	var p database.Patient
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, age, medical_history, last_doctor_visit, next_medication_time, family_members
		FROM patient_info ORDER BY id LIMIT 1`,
	).Scan(&p.ID, &p.Name, &p.Age, &p.MedicalHistory, &p.LastDoctorVisit, &p.NextMedicationTime, &p.FamilyMembers)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return &p, nil
}
