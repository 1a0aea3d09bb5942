package decrypter

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ScriptRock/pdfread/internal/types"
)

const (
	fileID = "acac29b4192fd923c24fe6042479b2a9"

	// user and owner password "test", R3, 128-bit key
	testO   = "badad1e86442699427116d3e5d5271bc80a27814fc5e80f815efeef839354c5f"
	testU   = "a5b5fc1fcc399c6845fedcdfac82027c00000000000000000000000000000000"
	testKey = "f94525a3e0df444fd849d980578ada22"

	// empty user password, owner password "owner", R3, 128-bit key
	openO   = "566fa873ee33c797cd3b904fdadf814afa34df9a38f6ed41b984e2c6da2aa6f5"
	openU   = "e558a911eee6793b016d08a1a232604d00000000000000000000000000000000"
	openKey = "860ef196cb4704341581a3bc694b9fa6"

	// empty user and owner password, R2, 40-bit key
	r2O   = "2055c756c72e1ad702608e8196acad447ad32d17cff583235f6dd15fed7dab67"
	r2U   = "310b815053374065d850e6c51927d0724b6b7db1b2e00a7144ec046f4e6afaa6"
	r2Key = "55b3f87a67"
)

func unhex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func encryptDict(t *testing.T, o, u string, r int) *types.Dict {
	t.Helper()
	d := types.NewDict()
	d.Set("Filter", types.Name("Standard"))
	if r == 2 {
		d.Set("V", types.Integer(1))
		d.Set("Length", types.Integer(40))
	} else {
		d.Set("V", types.Integer(2))
		d.Set("Length", types.Integer(128))
	}
	d.Set("R", types.Integer(r))
	d.Set("O", types.String{Data: string(unhex(t, o))})
	d.Set("U", types.String{Data: string(unhex(t, u))})
	d.Set("P", types.Integer(-4))
	return d
}

// setCryptFilter switches d to a crypt filter based handler using cfm.
func setCryptFilter(d *types.Dict, v, r, length int, cfm string) {
	std := types.NewDict()
	std.Set("CFM", types.Name(cfm))
	std.Set("AuthEvent", types.Name("DocOpen"))
	std.Set("Length", types.Integer(length/8))
	cf := types.NewDict()
	cf.Set("StdCF", std)

	d.Set("V", types.Integer(v))
	d.Set("R", types.Integer(r))
	d.Set("Length", types.Integer(length))
	d.Set("CF", cf)
	d.Set("StmF", types.Name("StdCF"))
	d.Set("StrF", types.Name("StdCF"))
}

// encryptAES encrypts data with AES-CBC using iv and PKCS#5 padding and
// prepends the iv, the way strings and streams are stored.
func encryptAES(t *testing.T, key, iv, data []byte) []byte {
	t.Helper()
	b, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	pad := aes.BlockSize - len(data)%aes.BlockSize
	buf := append([]byte(nil), data...)
	for i := 0; i < pad; i++ {
		buf = append(buf, byte(pad))
	}
	cipher.NewCBCEncrypter(b, iv).CryptBlocks(buf, buf)
	return append(append([]byte(nil), iv...), buf...)
}

func Test_ComputeKey(t *testing.T) {
	testCases := map[string]struct {
		password string
		rev      int
		keyLen   int
		o        string
		want     string
	}{
		"R3 128-bit": {password: "test", rev: 3, keyLen: 16, o: testO, want: testKey},
		"R3 empty":   {password: "", rev: 3, keyLen: 16, o: openO, want: openKey},
		"R2 40-bit":  {password: "", rev: 2, keyLen: 5, o: r2O, want: r2Key},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got := ComputeKey([]byte(tc.password), tc.rev, tc.keyLen, unhex(t, tc.o), -4, unhex(t, fileID), true)

			if diff := cmp.Diff(hex.EncodeToString(got), tc.want); diff != "" {
				t.Error("key did not match expectations:", diff)
			}
		})
	}
}

func Test_ComputeKey_EncryptMetadata(t *testing.T) {
	with := ComputeKey([]byte("test"), 4, 16, unhex(t, testO), -4, unhex(t, fileID), true)
	without := ComputeKey([]byte("test"), 4, 16, unhex(t, testO), -4, unhex(t, fileID), false)
	if cmp.Equal(with, without) {
		t.Error("EncryptMetadata false did not change the key")
	}
}

func Test_ComputeOU(t *testing.T) {
	testCases := map[string]struct {
		owner, user string
		rev, keyLen int
		key         string
		wantO       string
		wantU       string
	}{
		"R3": {owner: "test", user: "test", rev: 3, keyLen: 16, key: testKey, wantO: testO, wantU: testU},
		"R3 empty owner falls back to user": {
			owner: "", user: "test", rev: 3, keyLen: 16, key: testKey, wantO: testO, wantU: testU,
		},
		"R2": {rev: 2, keyLen: 5, key: r2Key, wantO: r2O, wantU: r2U},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			o := ComputeO([]byte(tc.owner), []byte(tc.user), tc.rev, tc.keyLen)
			if diff := cmp.Diff(hex.EncodeToString(o), tc.wantO); diff != "" {
				t.Error("O did not match expectations:", diff)
			}
			u := ComputeU(unhex(t, tc.key), tc.rev, unhex(t, fileID))
			if diff := cmp.Diff(hex.EncodeToString(u), tc.wantU); diff != "" {
				t.Error("U did not match expectations:", diff)
			}
		})
	}
}

func Test_Handler_Authenticate(t *testing.T) {
	testCases := map[string]struct {
		o, u     string
		rev      int
		password string
		wantAuth Auth
		wantKey  string
		wantErr  error
	}{
		"user and owner password": {o: testO, u: testU, rev: 3, password: "test", wantAuth: AuthOwner, wantKey: testKey},
		"wrong password":          {o: testO, u: testU, rev: 3, password: "nope", wantErr: ErrInvalidPassword},
		"empty user password":     {o: openO, u: openU, rev: 3, password: "", wantAuth: AuthUser, wantKey: openKey},
		"owner password":          {o: openO, u: openU, rev: 3, password: "owner", wantAuth: AuthOwner, wantKey: openKey},
		"R2 empty password":       {o: r2O, u: r2U, rev: 2, password: "", wantAuth: AuthOwner, wantKey: r2Key},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			h, err := New(encryptDict(t, tc.o, tc.u, tc.rev), unhex(t, fileID))
			if err != nil {
				t.Fatal(err)
			}

			auth, err := h.Authenticate([]byte(tc.password))
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got error %v, want %v", err, tc.wantErr)
			}
			if auth != tc.wantAuth {
				t.Errorf("got auth %d, want %d", auth, tc.wantAuth)
			}
			if diff := cmp.Diff(hex.EncodeToString(h.Key()), tc.wantKey); diff != "" {
				t.Error("key did not match expectations:", diff)
			}
		})
	}
}

func Test_New_Errors(t *testing.T) {
	testCases := map[string]func(d *types.Dict){
		"unknown filter":     func(d *types.Dict) { d.Set("Filter", types.Name("Adobe.PubSec")) },
		"bad key length":     func(d *types.Dict) { d.Set("Length", types.Integer(44)) },
		"unknown revision":   func(d *types.Dict) { d.Set("R", types.Integer(5)) },
		"unknown version":    func(d *types.Dict) { d.Set("V", types.Integer(3)) },
		"short O":            func(d *types.Dict) { d.Set("O", types.String{Data: "short"}) },
		"256-bit RC4 key":    func(d *types.Dict) { d.Set("Length", types.Integer(256)) },
		"256-bit key for R4": func(d *types.Dict) { setCryptFilter(d, 5, 4, 256, "AESV3") },
	}

	for name, modify := range testCases {
		t.Run(name, func(t *testing.T) {
			d := encryptDict(t, testO, testU, 3)
			modify(d)
			if _, err := New(d, unhex(t, fileID)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func Test_ObjectKey(t *testing.T) {
	testCases := map[string]struct {
		key  string
		ptr  types.Objptr
		want string
	}{
		"128-bit": {key: testKey, ptr: types.Objptr{ID: 2}, want: "86712720f3ff3dd715b35722dcdbc53c"},
		"40-bit":  {key: r2Key, ptr: types.Objptr{ID: 7}, want: "a207ffc46d3fdee1d031"},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got := objectKey(unhex(t, tc.key), tc.ptr, false)
			if diff := cmp.Diff(hex.EncodeToString(got), tc.want); diff != "" {
				t.Error("object key did not match expectations:", diff)
			}
		})
	}
}

func Test_RC4_RoundTrip(t *testing.T) {
	key := unhex(t, testKey)
	enc := RC4(key, []byte("plaintext"))
	if diff := cmp.Diff(hex.EncodeToString(enc), "2543ee3b644f2b1c10"); diff != "" {
		t.Error("ciphertext did not match expectations:", diff)
	}
	if diff := cmp.Diff(string(RC4(key, enc)), "plaintext"); diff != "" {
		t.Error("round trip did not match expectations:", diff)
	}
}

func Test_Handler_DecryptObject(t *testing.T) {
	h, err := New(encryptDict(t, testO, testU, 3), unhex(t, fileID))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.Authenticate([]byte("test")); err != nil {
		t.Fatal(err)
	}
	ptr := types.Objptr{ID: 2}
	title := types.String{Data: string(unhex(t, "2b6b743e6cde7b3589d41867"))}

	info := types.NewDict()
	info.Set("Title", title)
	info.Set("Keywords", types.Array{title, types.Integer(1)})
	info.Set("Author", types.Objptr{ID: 9})

	got, err := h.DecryptObject(ptr, info)
	if err != nil {
		t.Fatal(err)
	}
	d := got.(*types.Dict)
	if diff := cmp.Diff(d.Get("Title"), types.Object(types.String{Data: "Secret Title"})); diff != "" {
		t.Error("title did not match expectations:", diff)
	}
	if diff := cmp.Diff(d.Get("Keywords"), types.Object(types.Array{types.String{Data: "Secret Title"}, types.Integer(1)})); diff != "" {
		t.Error("array did not match expectations:", diff)
	}
	if diff := cmp.Diff(d.Get("Author"), types.Object(types.Objptr{ID: 9})); diff != "" {
		t.Error("reference did not match expectations:", diff)
	}

	hdr := types.NewDict()
	hdr.Set("Type", types.Name("XRef"))
	xref := types.Stream{Hdr: hdr, Data: []byte{1, 2, 3}}
	got, err = h.DecryptObject(ptr, xref)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(got.(types.Stream).Data, []byte{1, 2, 3}); diff != "" {
		t.Error("xref stream was modified:", diff)
	}
}

func Test_decryptAES(t *testing.T) {
	key := unhex(t, testKey)
	iv := []byte("0123456789abcdef")
	plain := []byte("hello, world")
	padded := append(append([]byte(nil), plain...), 4, 4, 4, 4)

	b, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	enc := make([]byte, len(padded))
	cipher.NewCBCEncrypter(b, iv).CryptBlocks(enc, padded)

	got, err := decryptAES(key, append(iv, enc...))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(string(got), string(plain)); diff != "" {
		t.Error("plaintext did not match expectations:", diff)
	}

	if _, err := decryptAES(key, iv); err == nil {
		t.Error("expected an error for a ciphertext without blocks")
	}
}

func Test_Handler_AESV2(t *testing.T) {
	d := encryptDict(t, testO, testU, 3)
	setCryptFilter(d, 4, 4, 128, "AESV2")
	h, err := New(d, unhex(t, fileID))
	if err != nil {
		t.Fatal(err)
	}
	auth, err := h.Authenticate([]byte("test"))
	if err != nil {
		t.Fatal(err)
	}
	if auth != AuthOwner {
		t.Errorf("got auth %d, want %d", auth, AuthOwner)
	}
	if diff := cmp.Diff(hex.EncodeToString(h.Key()), testKey); diff != "" {
		t.Error("key did not match expectations:", diff)
	}

	ptr := types.Objptr{ID: 4}
	key := objectKey(unhex(t, testKey), ptr, true)
	if diff := cmp.Diff(h.ObjectKey(ptr), key); diff != "" {
		t.Error("object key did not match expectations:", diff)
	}
	iv := []byte("fedcba9876543210")

	hdr := types.NewDict()
	hdr.Set("Length", types.Integer(32))
	strm := types.Stream{Hdr: hdr, Data: encryptAES(t, key, iv, []byte("BT ET"))}
	got, err := h.DecryptObject(ptr, types.Array{
		types.String{Data: string(encryptAES(t, key, iv, []byte("Secret Title")))},
		strm,
	})
	if err != nil {
		t.Fatal(err)
	}
	arr := got.(types.Array)
	if diff := cmp.Diff(arr[0], types.Object(types.String{Data: "Secret Title"})); diff != "" {
		t.Error("string did not match expectations:", diff)
	}
	if diff := cmp.Diff(string(arr[1].(types.Stream).Data), "BT ET"); diff != "" {
		t.Error("stream did not match expectations:", diff)
	}
}

// r6Dict builds a revision 6 /Encrypt dictionary for the given passwords
// and file encryption key (ISO 32000-2, Algorithms 8 to 10).
func r6Dict(t *testing.T, user, owner string, fileKey []byte) *types.Dict {
	t.Helper()
	wrap := func(key []byte) []byte {
		b, err := aes.NewCipher(key)
		if err != nil {
			t.Fatal(err)
		}
		out := make([]byte, len(fileKey))
		cipher.NewCBCEncrypter(b, make([]byte, aes.BlockSize)).CryptBlocks(out, fileKey)
		return out
	}

	uvs, uks := []byte("uvsalt01"), []byte("uksalt01")
	u := append(append(hashR6([]byte(user), uvs, nil), uvs...), uks...)
	ue := wrap(hashR6([]byte(user), uks, nil))

	ovs, oks := []byte("ovsalt01"), []byte("oksalt01")
	o := append(append(hashR6([]byte(owner), ovs, u), ovs...), oks...)
	oe := wrap(hashR6([]byte(owner), oks, u))

	perms := []byte{0xfc, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 'T', 'a', 'd', 'b', 1, 2, 3, 4}
	b, err := aes.NewCipher(fileKey)
	if err != nil {
		t.Fatal(err)
	}
	b.Encrypt(perms, perms)

	d := types.NewDict()
	d.Set("Filter", types.Name("Standard"))
	setCryptFilter(d, 5, 6, 256, "AESV3")
	d.Set("O", types.String{Data: string(o)})
	d.Set("U", types.String{Data: string(u)})
	d.Set("OE", types.String{Data: string(oe)})
	d.Set("UE", types.String{Data: string(ue)})
	d.Set("Perms", types.String{Data: string(perms)})
	d.Set("P", types.Integer(-4))
	return d
}

func Test_Handler_R6(t *testing.T) {
	fileKey := []byte("0123456789abcdef0123456789ABCDEF")

	testCases := map[string]struct {
		password string
		wantAuth Auth
		wantErr  error
	}{
		"user password":         {password: "us er", wantAuth: AuthUser},
		"owner password":        {password: "owner", wantAuth: AuthOwner},
		"non-ASCII space":       {password: "us\u00a0er", wantAuth: AuthUser},
		"wrong password":        {password: "user", wantErr: ErrInvalidPassword},
		"prohibited code point": {password: "us\u0007er", wantErr: ErrInvalidPassword},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			h, err := New(r6Dict(t, "us er", "owner", fileKey), nil)
			if err != nil {
				t.Fatal(err)
			}

			auth, err := h.Authenticate([]byte(tc.password))
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got error %v, want %v", err, tc.wantErr)
			}
			if auth != tc.wantAuth {
				t.Errorf("got auth %d, want %d", auth, tc.wantAuth)
			}
			if tc.wantErr != nil {
				return
			}
			if diff := cmp.Diff(h.Key(), fileKey); diff != "" {
				t.Error("key did not match expectations:", diff)
			}

			ptr := types.Objptr{ID: 9}
			enc := encryptAES(t, fileKey, []byte("0000111122223333"), []byte("Secret Title"))
			got, err := h.DecryptObject(ptr, types.String{Data: string(enc), Hex: true})
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(got, types.Object(types.String{Data: "Secret Title", Hex: true})); diff != "" {
				t.Error("string did not match expectations:", diff)
			}
		})
	}
}
