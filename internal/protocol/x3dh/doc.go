// Package x3dh implements the X3DH key-agreement used to bootstrap a Double Ratchet
// session between two devices.
//
// # Overview
//
// X3DH lets an initiator derive a shared 32-byte root key and a first chain key
// with a responder who has published a pre-key bundle. The bundle contains:
//   - Identity key (X25519) and identity signing key (Ed25519)
//   - Signed pre-key (X25519) and its Ed25519 signature
//   - An optional one-time pre-key (X25519)
//
// # Flows
//
// Initiator:
//  1. Verify the signed pre-key signature.
//  2. Generate an ephemeral X25519 key pair.
//  3. Compute DH values (IKa·SPKb, EKa·IKb, EKa·SPKb[, EKa·OPKb]).
//  4. HKDF over the concatenated DH outputs to produce root key ‖ chain key.
//  5. Seed the sending chain with a fresh ratchet key pair.
//
// Responder:
//  1. Receive the PreKeyMessage (initiator IK, ephemeral EK, SPK id[, OPK id]).
//  2. Look up the SPK and retire the OPK.
//  3. Compute the symmetric DH set (SPKb·IKa, IKb·EKa, SPKb·EKa[, OPKb·EKa]).
//  4. HKDF the same concatenation to the identical root and chain keys, which
//     seed the receiving chain.
//
// # Errors
//
// Bundle problems wrap domain.ErrPreKeyBundle and are reported before any DH.
// Missing local material wraps domain.ErrSession.
//
// # Security notes
//
// Only public material is sent over the wire. One-time pre-keys, when present,
// improve forward secrecy by mixing in a value that is deleted after first use.
package x3dh
