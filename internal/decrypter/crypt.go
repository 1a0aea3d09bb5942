// Package decrypter implements the PDF standard security handler,
// see PDF 32000-1:2008, §7.6.3, and ISO 32000-2 for revision 6.
package decrypter

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/xdg-go/stringprep"

	"github.com/ScriptRock/pdfread/internal/types"
)

var ErrInvalidPassword = errors.New("encrypted PDF: invalid password")

// Auth tells which password authenticated a Handler.
type Auth int

const (
	AuthNone Auth = iota
	AuthUser
	AuthOwner
)

type cipherKind int

const (
	cipherRC4 cipherKind = iota
	cipherAESV2
	cipherAESV3
)

// A Handler holds the parameters of an /Encrypt dictionary and, once a
// password has been accepted, the file encryption key.
type Handler struct {
	v, r   int
	keyLen int // in bytes
	cipher cipherKind

	o, u, oe, ue, perms []byte
	p                   uint32
	id                  []byte
	encryptMetadata     bool

	key  []byte
	auth Auth
}

// New parses the /Encrypt dictionary of a file whose first /ID entry is id.
func New(encrypt *types.Dict, id []byte) (*Handler, error) {
	if encrypt == nil {
		return nil, errors.New("malformed PDF: missing encryption dictionary")
	}
	if f, _ := encrypt.Get("Filter").(types.Name); f != "Standard" {
		return nil, fmt.Errorf("unsupported PDF: encryption filter %v", encrypt.Get("Filter"))
	}
	n, _ := encrypt.Get("Length").(types.Integer)
	if n == 0 {
		n = 40
	}
	v, _ := encrypt.Get("V").(types.Integer)
	r, _ := encrypt.Get("R").(types.Integer)
	o, _ := encrypt.Get("O").(types.String)
	u, _ := encrypt.Get("U").(types.String)
	p, _ := encrypt.Get("P").(types.Integer)

	if n%8 != 0 || n < 40 || (n > 128 && n != 256) {
		return nil, fmt.Errorf("malformed PDF: %d-bit encryption key", n)
	}
	kind, ok := cryptFilter(int64(v), encrypt)
	if !ok {
		return nil, fmt.Errorf("unsupported PDF: encryption version V=%d", v)
	}
	if r < 2 || r == 5 || r > 6 {
		return nil, fmt.Errorf("malformed PDF: encryption revision R=%d", r)
	}

	h := &Handler{
		v:               int(v),
		r:               int(r),
		cipher:          kind,
		o:               []byte(o.Data),
		u:               []byte(u.Data),
		p:               uint32(int32(p)),
		id:              id,
		encryptMetadata: true,
	}
	switch {
	case r == 2:
		h.keyLen = 5
	case v == 4:
		h.keyLen = 16
	case r == 6:
		h.keyLen = 32
	default:
		h.keyLen = int(n / 8)
	}
	if h.keyLen > md5.Size && r != 6 {
		return nil, fmt.Errorf("malformed PDF: %d-bit encryption key for revision %d", n, r)
	}
	if emd, ok := encrypt.Get("EncryptMetadata").(types.Bool); ok && v >= 4 {
		h.encryptMetadata = bool(emd)
	}

	if r == 6 {
		oe, _ := encrypt.Get("OE").(types.String)
		ue, _ := encrypt.Get("UE").(types.String)
		perms, _ := encrypt.Get("Perms").(types.String)
		h.oe, h.ue, h.perms = []byte(oe.Data), []byte(ue.Data), []byte(perms.Data)
		if len(h.u) < 48 || len(h.o) < 48 || len(h.ue) < 32 || len(h.oe) < 32 || len(h.perms) < 16 {
			return nil, errors.New("malformed PDF: missing R6 encryption parameters")
		}
		return h, nil
	}

	if len(h.o) != 32 || len(h.u) < 32 {
		return nil, errors.New("malformed PDF: missing O= or U= encryption parameters")
	}
	return h, nil
}

// Revision returns the /R value of the security handler.
func (h *Handler) Revision() int { return h.r }

// KeyLength returns the length of the file encryption key in bytes.
func (h *Handler) KeyLength() int { return h.keyLen }

// Key returns the file encryption key, or nil before authentication.
func (h *Handler) Key() []byte { return h.key }

// EncryptMetadata reports whether XMP metadata streams are encrypted.
func (h *Handler) EncryptMetadata() bool { return h.encryptMetadata }

// Authenticate tries password first as the owner password and then as the
// user password. On success the file encryption key is kept in h.
func (h *Handler) Authenticate(password []byte) (Auth, error) {
	if h.r == 6 {
		pw, err := saslPrep(password)
		if err != nil {
			return AuthNone, err
		}
		if key, ok := h.authenticateR6(pw, h.o, h.oe, h.u[:48]); ok {
			h.key, h.auth = key, AuthOwner
			return h.auth, nil
		}
		if key, ok := h.authenticateR6(pw, h.u, h.ue, nil); ok {
			h.key, h.auth = key, AuthUser
			return h.auth, nil
		}
		return AuthNone, ErrInvalidPassword
	}

	if key, ok := h.authenticateUser(password); ok {
		h.key, h.auth = key, AuthUser
		if _, owner := h.authenticateOwner(password); owner {
			h.auth = AuthOwner
		}
		return h.auth, nil
	}
	if key, ok := h.authenticateOwner(password); ok {
		h.key, h.auth = key, AuthOwner
		return h.auth, nil
	}
	return AuthNone, ErrInvalidPassword
}

// authenticateUser implements Algorithms 4 and 5 (user password check).
func (h *Handler) authenticateUser(password []byte) ([]byte, bool) {
	key := ComputeKey(password, h.r, h.keyLen, h.o, int32(h.p), h.id, h.encryptMetadata)
	u := ComputeU(key, h.r, h.id)
	if h.r == 2 {
		return key, bytes.Equal(u, h.u[:32])
	}
	return key, bytes.Equal(u[:16], h.u[:16])
}

// authenticateOwner implements Algorithm 7: the user password is recovered
// from /O and checked in turn.
func (h *Handler) authenticateOwner(password []byte) ([]byte, bool) {
	rc4key := ownerKey(password, h.r, h.keyLen)
	buf := make([]byte, 32)
	copy(buf, h.o)
	if h.r == 2 {
		c, _ := rc4.NewCipher(rc4key)
		c.XORKeyStream(buf, buf)
	} else {
		tmp := make([]byte, len(rc4key))
		for i := 19; i >= 0; i-- {
			for j := range tmp {
				tmp[j] = rc4key[j] ^ byte(i)
			}
			c, _ := rc4.NewCipher(tmp)
			c.XORKeyStream(buf, buf)
		}
	}
	return h.authenticateUser(buf)
}

var passwordPad = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41, 0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80, 0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

func padPassword(pw []byte) []byte {
	padded := make([]byte, 32)
	n := copy(padded, pw)
	copy(padded[n:], passwordPad)
	return padded
}

// ComputeKey derives the file encryption key from a user password
// (Algorithm 2 of PDF 32000-1:2008).
func ComputeKey(password []byte, rev, keyLen int, o []byte, p int32, id []byte, encryptMetadata bool) []byte {
	h := md5.New()
	h.Write(padPassword(password))
	h.Write(o)
	var pb [4]byte
	binary.LittleEndian.PutUint32(pb[:], uint32(p))
	h.Write(pb[:])
	h.Write(id)
	if rev >= 4 && !encryptMetadata {
		h.Write([]byte{0xff, 0xff, 0xff, 0xff})
	}
	key := h.Sum(nil)

	if rev < 3 {
		return key[:5]
	}
	for i := 0; i < 50; i++ {
		h.Reset()
		h.Write(key[:keyLen])
		key = h.Sum(key[:0])
	}
	return key[:keyLen]
}

// ComputeU computes the /U value for a file encryption key
// (Algorithms 4 and 5).
func ComputeU(key []byte, rev int, id []byte) []byte {
	c, _ := rc4.NewCipher(key)
	if rev == 2 {
		u := make([]byte, 32)
		c.XORKeyStream(u, passwordPad)
		return u
	}

	h := md5.New()
	h.Write(passwordPad)
	h.Write(id)
	u := h.Sum(nil)
	c.XORKeyStream(u, u)
	xorRounds(key, u)
	return append(u, make([]byte, 16)...)
}

// ComputeO computes the /O value from the owner and user passwords
// (Algorithm 3). An empty owner password falls back to the user password.
func ComputeO(owner, user []byte, rev, keyLen int) []byte {
	if len(owner) == 0 {
		owner = user
	}
	rc4key := ownerKey(owner, rev, keyLen)
	c, _ := rc4.NewCipher(rc4key)
	o := make([]byte, 32)
	c.XORKeyStream(o, padPassword(user))
	if rev >= 3 {
		xorRounds(rc4key, o)
	}
	return o
}

func ownerKey(password []byte, rev, keyLen int) []byte {
	h := md5.New()
	h.Write(padPassword(password))
	sum := h.Sum(nil)
	if rev < 3 {
		return sum[:5]
	}
	for i := 0; i < 50; i++ {
		h.Reset()
		h.Write(sum[:keyLen])
		sum = h.Sum(sum[:0])
	}
	return sum[:keyLen]
}

// xorRounds applies the 19 extra RC4 passes of revision 3, each keyed with
// key XOR the pass number.
func xorRounds(key, buf []byte) {
	tmp := make([]byte, len(key))
	for i := 1; i <= 19; i++ {
		for j := range tmp {
			tmp[j] = key[j] ^ byte(i)
		}
		c, _ := rc4.NewCipher(tmp)
		c.XORKeyStream(buf, buf)
	}
}

// RC4 returns data transformed with the RC4 keystream of key.
func RC4(key, data []byte) []byte {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return append([]byte(nil), data...)
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}

func saslPrep(password []byte) ([]byte, error) {
	prepped, err := stringprep.SASLprep.Prepare(string(password))
	if err != nil {
		return nil, ErrInvalidPassword
	}
	buf := []byte(prepped)
	if len(buf) > 127 {
		buf = buf[:127]
	}
	return buf, nil
}

// authenticateR6 implements Algorithms 11 and 12: validate against the
// hash in the first 32 bytes of entry and unwrap the key from wrapped.
func (h *Handler) authenticateR6(password, entry, wrapped, udata []byte) ([]byte, bool) {
	if !bytes.Equal(hashR6(password, entry[32:40], udata), entry[:32]) {
		return nil, false
	}
	intermediate := hashR6(password, entry[40:48], udata)
	b, err := aes.NewCipher(intermediate)
	if err != nil {
		return nil, false
	}
	var iv [16]byte
	key := make([]byte, 32)
	cipher.NewCBCDecrypter(b, iv[:]).CryptBlocks(key, wrapped[:32])

	dec := make([]byte, 16)
	b, err = aes.NewCipher(key)
	if err != nil {
		return nil, false
	}
	b.Decrypt(dec, h.perms[:16])
	if string(dec[9:12]) != "adb" {
		return nil, false
	}
	return key, true
}

// hashR6 implements Algorithm 2.B of ISO 32000-2.
func hashR6(p, salt, udata []byte) []byte {
	h := sha256.New()
	h.Write(p)
	h.Write(salt)
	h.Write(udata)
	k := h.Sum(nil)

	for i := 0; ; i++ {
		k1 := make([]byte, 0, 64*(len(p)+len(k)+len(udata)))
		for j := 0; j < 64; j++ {
			k1 = append(k1, p...)
			k1 = append(k1, k...)
			k1 = append(k1, udata...)
		}
		b, err := aes.NewCipher(k[:16])
		if err != nil {
			panic(err)
		}
		e := make([]byte, len(k1))
		cipher.NewCBCEncrypter(b, k[16:32]).CryptBlocks(e, k1)

		var mod int
		for _, c := range e[:16] {
			mod += int(c)
		}
		switch mod % 3 {
		case 0:
			v := sha256.Sum256(e)
			k = v[:]
		case 1:
			v := sha512.Sum384(e)
			k = v[:]
		case 2:
			v := sha512.Sum512(e)
			k = v[:]
		}

		if i >= 63 && int(e[len(e)-1]) <= i-32 {
			break
		}
	}
	return k[:32]
}

// ObjectKey returns the key used for the strings and streams of object ptr.
func (h *Handler) ObjectKey(ptr types.Objptr) []byte {
	if h.r == 6 {
		return h.key
	}
	return objectKey(h.key, ptr, h.cipher == cipherAESV2)
}

func objectKey(key []byte, ptr types.Objptr, aes bool) []byte {
	m := md5.New()
	m.Write(key)
	m.Write([]byte{byte(ptr.ID), byte(ptr.ID >> 8), byte(ptr.ID >> 16), byte(ptr.Gen), byte(ptr.Gen >> 8)})
	if aes {
		m.Write([]byte("sAlT"))
	}
	n := len(key) + 5
	if n > 16 {
		n = 16
	}
	return m.Sum(nil)[:n]
}

// DecryptBytes decrypts data belonging to object ptr.
func (h *Handler) DecryptBytes(ptr types.Objptr, data []byte) ([]byte, error) {
	if h.key == nil {
		return nil, errors.New("encrypted PDF: no decryption key")
	}
	key := h.ObjectKey(ptr)
	if h.cipher == cipherRC4 {
		return RC4(key, data), nil
	}
	return decryptAES(key, data)
}

func decryptAES(key, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	if len(data) < 2*aes.BlockSize || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("bad AES ciphertext length %d", len(data))
	}
	b, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("bad AES key: %w", err)
	}
	out := make([]byte, len(data)-aes.BlockSize)
	cipher.NewCBCDecrypter(b, data[:aes.BlockSize]).CryptBlocks(out, data[aes.BlockSize:])
	pad := int(out[len(out)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(out) {
		return nil, errors.New("bad AES padding")
	}
	return out[:len(out)-pad], nil
}

// DecryptObject decrypts every string and stream payload reachable from obj
// without following references. Strings and streams are replaced, dictionaries
// and arrays are rebuilt with decrypted members.
func (h *Handler) DecryptObject(ptr types.Objptr, obj types.Object) (types.Object, error) {
	switch x := obj.(type) {
	case nil, types.Bool, types.Integer, types.Real, types.Name, types.Objptr:
		return x, nil
	case types.String:
		data, err := h.DecryptBytes(ptr, []byte(x.Data))
		if err != nil {
			return nil, err
		}
		return types.String{Data: string(data), Hex: x.Hex}, nil
	case types.Stream:
		t, _ := x.Hdr.Get("Type").(types.Name)
		if t == "XRef" {
			return x, nil
		}
		hdr, err := h.DecryptObject(ptr, x.Hdr)
		if err != nil {
			return nil, err
		}
		if t == "Metadata" && !h.encryptMetadata {
			return types.Stream{Hdr: hdr.(*types.Dict), Data: x.Data}, nil
		}
		data, err := h.DecryptBytes(ptr, x.Data)
		if err != nil {
			return nil, err
		}
		return types.Stream{Hdr: hdr.(*types.Dict), Data: data}, nil
	case *types.Dict:
		out := types.NewDict()
		for _, k := range x.Keys() {
			v, err := h.DecryptObject(ptr, x.Get(k))
			if err != nil {
				return nil, err
			}
			out.Set(k, v)
		}
		return out, nil
	case types.Array:
		out := make(types.Array, len(x))
		for i, e := range x {
			v, err := h.DecryptObject(ptr, e)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case types.Objdef:
		inner, err := h.DecryptObject(x.Ptr, x.Obj)
		if err != nil {
			return nil, err
		}
		return types.Objdef{Ptr: x.Ptr, Obj: inner}, nil
	default:
		return nil, fmt.Errorf("unexpected object type %T", obj)
	}
}

// cryptFilter checks the /V value and, for V 4 and 5, the crypt filter
// parameters, and returns the cipher they select.
func cryptFilter(v int64, encrypt *types.Dict) (cipherKind, bool) {
	switch v {
	case 1, 2:
		return cipherRC4, true
	case 4, 5:
	default:
		return 0, false
	}

	cf, ok := encrypt.Get("CF").(*types.Dict)
	if !ok {
		return 0, false
	}
	stmf, ok := encrypt.Get("StmF").(types.Name)
	if !ok {
		return 0, false
	}
	strf, ok := encrypt.Get("StrF").(types.Name)
	if !ok || stmf != strf {
		return 0, false
	}
	cfparam, ok := cf.Get(stmf).(*types.Dict)
	if !ok {
		return 0, false
	}
	if ev := cfparam.Get("AuthEvent"); ev != nil && ev != types.Name("DocOpen") {
		return 0, false
	}

	switch cfparam.Get("CFM") {
	case types.Name("V2"):
		if v == 4 {
			return cipherRC4, true
		}
	case types.Name("AESV2"):
		if v == 4 {
			return cipherAESV2, true
		}
	case types.Name("AESV3"):
		if v == 5 {
			return cipherAESV3, true
		}
	}
	return 0, false
}
