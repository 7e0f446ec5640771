package service

import "time"

// SetClock overrides the service clock in tests.
func (s *CustomerService) SetClock(now func() time.Time) { s.now = now }

// SetClock overrides the issuer clock in tests.
func (j *JWTIssuer) SetClock(now func() time.Time) { j.now = now }
