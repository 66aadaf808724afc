package models

import "time"

// Account represents one family identity. ParentPinHash is empty until a PIN
// has been provisioned.
type Account struct {
	ID            string    `json:"id"`
	Email         string    `json:"email,omitempty"`
	ParentPinHash string    `json:"-"`
	IsAnonymous   bool      `json:"isAnonymous"`
	CreatedAt     time.Time `json:"createdAt"`
}

// HasPin reports whether a parent PIN has been provisioned
func (a *Account) HasPin() bool {
	return a.ParentPinHash != ""
}

// Fields returns the account as store document fields, without the id.
func (a *Account) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		FieldEmail:       nil,
		FieldParentPin:   nil,
		FieldIsAnonymous: a.IsAnonymous,
		FieldCreatedAt:   a.CreatedAt.UTC(),
	}
	if a.Email != "" {
		fields[FieldEmail] = a.Email
	}
	if a.ParentPinHash != "" {
		fields[FieldParentPin] = a.ParentPinHash
	}
	return fields
}

// DecodeAccount builds an Account from an untyped store document, failing
// closed on missing or malformed required fields.
func DecodeAccount(doc map[string]interface{}) (*Account, error) {
	d := decoder{doc: doc}
	a := &Account{
		ID:            d.requiredString(FieldID),
		Email:         d.optionalString(FieldEmail),
		ParentPinHash: d.optionalString(FieldParentPin),
		IsAnonymous:   d.requiredBool(FieldIsAnonymous),
	}
	if created := d.optionalTime(FieldCreatedAt); created != nil {
		a.CreatedAt = *created
	}
	if d.err != nil {
		return nil, d.err
	}
	return a, nil
}

// Credential binds an email and password hash to an account id. It is private
// to the identity provider.
type Credential struct {
	AccountID    string
	Email        string
	PasswordHash string
}

func (c *Credential) Fields() map[string]interface{} {
	return map[string]interface{}{
		FieldEmail:        c.Email,
		FieldPasswordHash: c.PasswordHash,
	}
}

func DecodeCredential(doc map[string]interface{}) (*Credential, error) {
	d := decoder{doc: doc}
	c := &Credential{
		AccountID:    d.requiredString(FieldID),
		Email:        d.requiredString(FieldEmail),
		PasswordHash: d.requiredString(FieldPasswordHash),
	}
	if d.err != nil {
		return nil, d.err
	}
	return c, nil
}
