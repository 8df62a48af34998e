package handlers

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mnehpets/typedrpc/rpc"
)

// User is a directory entry.
type User struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Email   string    `json:"email,omitempty"`
	Created time.Time `json:"created"`
}

// Users is an in-memory user directory.
type Users struct {
	mu    sync.RWMutex
	users map[string]User
	now   func() time.Time
}

// Init seeds the directory.
func (u *Users) Init() error {
	u.users = map[string]User{}
	u.now = time.Now
	u.put(User{ID: "ada", Name: "Ada Lovelace", Email: "ada@example.com"})
	return nil
}

func (u *Users) Methods() []rpc.Method {
	return []rpc.Method{
		rpc.Func2("Get", rpc.Context("ctx"), rpc.Arg[string]("id"), u.Get),
		rpc.Func0("List", u.List),
		rpc.Func2("Create", rpc.Arg[string]("name"), rpc.Optional("email", ""), u.Create),
		rpc.Proc1("Delete", rpc.Arg[string]("id"), u.Delete),
	}
}

// Get returns a user, or a not found domain error.
func (u *Users) Get(ctx context.Context, id string) (rpc.Result[User], error) {
	if err := ctx.Err(); err != nil {
		return rpc.Result[User]{}, err
	}
	u.mu.RLock()
	defer u.mu.RUnlock()
	usr, ok := u.users[id]
	if !ok {
		return rpc.Fail[User](rpc.NewError(CodeNotFound, "user not found").WithData(map[string]string{"id": id})), nil
	}
	return rpc.Ok(usr), nil
}

// List returns all users ordered by name.
func (u *Users) List() ([]User, error) {
	u.mu.RLock()
	out := make([]User, 0, len(u.users))
	for _, usr := range u.users {
		out = append(out, usr)
	}
	u.mu.RUnlock()
	slices.SortFunc(out, func(a, b User) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

// Create adds a user with a generated id.
func (u *Users) Create(name, email string) (User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, rpc.NewError(CodeInvalidInput, "name is required")
	}
	usr := User{ID: uuid.NewString(), Name: name, Email: email}
	return u.put(usr), nil
}

// Delete removes a user. Deleting an unknown user is a not found error.
func (u *Users) Delete(id string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.users[id]; !ok {
		return rpc.NewError(CodeNotFound, "user not found").WithData(map[string]string{"id": id})
	}
	delete(u.users, id)
	return nil
}

func (u *Users) put(usr User) User {
	u.mu.Lock()
	defer u.mu.Unlock()
	usr.Created = u.now().UTC()
	u.users[usr.ID] = usr
	return usr
}
