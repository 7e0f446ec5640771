package service

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/boddenberg/cadastro-clientes-pf-go/internal/domain"
)

const (
	maxNameLength    = 150
	maxEmailLength   = 254
	maxPasswordBytes = 72 // bcrypt ignores anything past this
	cpfDigits        = 11
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// normalizeInput trims the free-text fields in place. CPF and password
// are kept verbatim.
func normalizeInput(in *domain.CustomerInput) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
}

// validateInput returns the first rule violated, as *domain.ErrValidation.
func validateInput(in *domain.CustomerInput, now time.Time) error {
	switch {
	case in.Name == "":
		return &domain.ErrValidation{Field: "name", Message: "Nome é obrigatório"}
	case utf8.RuneCountInString(in.Name) > maxNameLength:
		return &domain.ErrValidation{Field: "name", Message: "Nome deve ter no máximo 150 caracteres"}
	}

	switch {
	case in.Email == "":
		return &domain.ErrValidation{Field: "email", Message: "Email é obrigatório"}
	case len(in.Email) > maxEmailLength || !emailPattern.MatchString(in.Email):
		return &domain.ErrValidation{Field: "email", Message: "Email inválido"}
	}

	if !isCPF(in.CPF) {
		return &domain.ErrValidation{Field: "national_id", Message: "CPF deve conter exatamente 11 dígitos"}
	}

	switch {
	case in.BirthDate.IsZero():
		return &domain.ErrValidation{Field: "birth_date", Message: "Data de nascimento é obrigatória"}
	case in.BirthDate.Time.After(now):
		return &domain.ErrValidation{Field: "birth_date", Message: "Data de nascimento não pode estar no futuro"}
	}

	switch {
	case in.Password == "":
		return &domain.ErrValidation{Field: "password", Message: "Senha é obrigatória"}
	case len(in.Password) > maxPasswordBytes:
		return &domain.ErrValidation{Field: "password", Message: "Senha deve ter no máximo 72 bytes"}
	}

	return nil
}

func isCPF(s string) bool {
	if len(s) != cpfDigits {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
