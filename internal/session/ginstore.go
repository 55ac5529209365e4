package session

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gorilla/securecookie"
	gsessions "github.com/gorilla/sessions"
	"github.com/samber/oops"
)

// UserKey はログイン中のユーザーを保持する Values のキーです。
const UserKey = "user"

// ErrAnonymous は未ログインのセッションを保存しようとしたときに返ります。
var ErrAnonymous = errors.New("session: refusing to persist a session without an authenticated user")

// boundKey はストア上のレコードに紐づいたユーザーIDを保持します。
// Clear で消えるため、ログイン時は必ず新しいIDが発行されます。
type boundKey struct{}

// GinStore は Store を gin-contrib/sessions から使えるようにするアダプタです。
// クッキーには署名付きのセッションIDだけを載せます。
type GinStore struct {
	store   Store
	codecs  []securecookie.Codec
	options *gsessions.Options
}

var _ sessions.Store = (*GinStore)(nil)

// NewGinStore は GinStore を作成します。keyPairs は securecookie の鍵ペアです。
func NewGinStore(store Store, opts sessions.Options, keyPairs ...[]byte) *GinStore {
	s := &GinStore{
		store:  store,
		codecs: securecookie.CodecsFromPairs(keyPairs...),
	}
	s.Options(opts)
	return s
}

// Options はクッキー属性を設定します。署名の有効期限も MaxAge に揃えます。
func (s *GinStore) Options(opts sessions.Options) {
	s.options = opts.ToGorillaOptions()
	for _, c := range s.codecs {
		if codec, ok := c.(*securecookie.SecureCookie); ok {
			codec.MaxAge(opts.MaxAge)
		}
	}
}

// Get はリクエスト単位でキャッシュされたセッションを返します。
func (s *GinStore) Get(r *http.Request, name string) (*gsessions.Session, error) {
	return gsessions.GetRegistry(r).Get(s, name)
}

// New はクッキーからセッションを復元します。
// クッキーが無い、署名が不正、レコードが無い場合は空のセッションを返します。
func (s *GinStore) New(r *http.Request, name string) (*gsessions.Session, error) {
	sess := gsessions.NewSession(s, name)
	opts := *s.options
	sess.Options = &opts
	sess.IsNew = true

	cookie, err := r.Cookie(name)
	if err != nil {
		return sess, nil
	}
	var id string
	if err := securecookie.DecodeMulti(name, cookie.Value, &id, s.codecs...); err != nil {
		return sess, nil
	}

	record, err := s.store.Load(r.Context(), id)
	if err != nil {
		return sess, err
	}
	if record == nil {
		return sess, nil
	}

	sess.ID = record.ID
	sess.IsNew = false
	sess.Values[UserKey] = record.User
	sess.Values[boundKey{}] = record.User.ID
	return sess, nil
}

// Save はセッションを永続化し、クッキーを書き込みます。
// MaxAge が負ならレコードを破棄してクッキーを失効させます。
func (s *GinStore) Save(r *http.Request, w http.ResponseWriter, sess *gsessions.Session) error {
	ctx := r.Context()

	if sess.Options != nil && sess.Options.MaxAge < 0 {
		if sess.ID != "" {
			if err := s.store.Destroy(ctx, sess.ID); err != nil {
				return err
			}
		}
		sess.ID = ""
		http.SetCookie(w, gsessions.NewCookie(sess.Name(), "", sess.Options))
		return nil
	}

	user, ok := sess.Values[UserKey].(User)
	if !ok || user.ID == 0 {
		return ErrAnonymous
	}

	if sess.ID != "" {
		if bound, _ := sess.Values[boundKey{}].(int64); bound != user.ID {
			if err := s.store.Destroy(ctx, sess.ID); err != nil {
				return err
			}
			sess.ID = ""
		}
	}

	if sess.ID == "" {
		id, err := s.store.Create(ctx, Payload{User: user})
		if err != nil {
			return err
		}
		sess.ID = id
		sess.Values[boundKey{}] = user.ID
	} else if err := s.store.Touch(ctx, sess.ID); err != nil {
		return err
	}

	encoded, err := securecookie.EncodeMulti(sess.Name(), sess.ID, s.codecs...)
	if err != nil {
		return oops.Code("SESSION_COOKIE_ENCODE_FAILED").Wrap(err)
	}
	http.SetCookie(w, gsessions.NewCookie(sess.Name(), encoded, sess.Options))
	sess.IsNew = false
	return nil
}

// Current はリクエストのログインユーザーを返します。
// ストアの読み込みに失敗した場合はエラーを返します。
func (s *GinStore) Current(r *http.Request, name string) (User, bool, error) {
	sess, err := s.Get(r, name)
	if err != nil {
		return User{}, false, err
	}
	user, ok := sess.Values[UserKey].(User)
	if !ok || user.ID == 0 {
		return User{}, false, nil
	}
	return user, true, nil
}

// Renew はログイン中のセッションの有効期限を延長し、クッキーを再発行します。
func (s *GinStore) Renew(r *http.Request, w http.ResponseWriter, name string) error {
	sess, err := s.Get(r, name)
	if err != nil {
		return err
	}
	if sess.ID == "" {
		return nil
	}
	return sess.Save(r, w)
}
