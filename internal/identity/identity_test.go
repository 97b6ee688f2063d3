package identity

import "testing"

func TestGenerateAndDeriveMnemonic(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic: %v", err)
	}

	svc, err := NewFromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("NewFromMnemonic: %v", err)
	}

	svc2, err := NewFromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("NewFromMnemonic (second): %v", err)
	}
	if svc.Address() != svc2.Address() {
		t.Fatalf("derivation is not deterministic: %s != %s", svc.Address(), svc2.Address())
	}
}

func TestSignAndVerifyEnvelope(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic: %v", err)
	}
	svc, err := NewFromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("NewFromMnemonic: %v", err)
	}

	envelope := []byte(`{"nonce":"deadbeef","services":{}}`)
	sig, err := svc.SignEnvelope(envelope)
	if err != nil {
		t.Fatalf("SignEnvelope: %v", err)
	}

	if !VerifyEnvelope(svc.Address(), envelope, sig) {
		t.Fatal("expected signature to verify against signer's own address")
	}

	tampered := []byte(`{"nonce":"deadbeef","services":{"extra":1}}`)
	if VerifyEnvelope(svc.Address(), tampered, sig) {
		t.Fatal("expected signature verification to fail for tampered envelope")
	}
}

func TestSignAndVerifyNonce(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic: %v", err)
	}
	svc, err := NewFromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("NewFromMnemonic: %v", err)
	}

	var nonce [32]byte
	for i := range nonce {
		nonce[i] = byte(i)
	}

	sig, err := svc.SignNonce(nonce)
	if err != nil {
		t.Fatalf("SignNonce: %v", err)
	}

	pub := svc.SchnorrPubKey()
	if !VerifyNonce(pub, nonce, sig) {
		t.Fatal("expected schnorr proof to verify against signer's own pubkey")
	}

	var otherNonce [32]byte
	otherNonce[0] = 0xff
	if VerifyNonce(pub, otherNonce, sig) {
		t.Fatal("expected schnorr verification to fail against a different nonce")
	}

	mnemonic2, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic (second): %v", err)
	}
	svc2, err := NewFromMnemonic(mnemonic2, "")
	if err != nil {
		t.Fatalf("NewFromMnemonic (second): %v", err)
	}
	if VerifyNonce(svc2.SchnorrPubKey(), nonce, sig) {
		t.Fatal("expected schnorr verification to fail against a different signer's pubkey")
	}
}

func TestEncryptDecryptMnemonicRoundTrip(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic: %v", err)
	}

	enc, err := EncryptMnemonic(mnemonic, "Str0ng!Passw0rd")
	if err != nil {
		t.Fatalf("EncryptMnemonic: %v", err)
	}

	decrypted, err := DecryptMnemonic(enc, "Str0ng!Passw0rd")
	if err != nil {
		t.Fatalf("DecryptMnemonic: %v", err)
	}
	if decrypted != mnemonic {
		t.Fatal("decrypted mnemonic does not match original")
	}

	if _, err := DecryptMnemonic(enc, "wrong password 123"); err == nil {
		t.Fatal("expected decryption to fail with wrong password")
	}
}

func TestValidatePasswordRejectsWeak(t *testing.T) {
	weak := []string{"short", "alllowercase123", "ALLUPPERCASE123"}
	for _, p := range weak {
		if err := ValidatePassword(p); err == nil {
			t.Fatalf("expected %q to be rejected", p)
		}
	}
	if err := ValidatePassword("Str0ng!Passw0rd"); err != nil {
		t.Fatalf("expected strong password to pass: %v", err)
	}
}
