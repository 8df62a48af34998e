// Command basic embeds the dispatcher in a plain net/http server.
//
//	curl -d '{"id":1,"method":"Hello.Say","params":["World"]}' localhost:8080/rpc
package main

import (
	"log"
	"net/http"

	"github.com/mnehpets/typedrpc/middleware"
	"github.com/mnehpets/typedrpc/rpc"
)

// Hello is the whole handler: one method, declared once.
type Hello struct{}

func (h *Hello) Methods() []rpc.Method {
	return []rpc.Method{
		rpc.Func1("Say", rpc.Arg[string]("name"), func(name string) (string, error) {
			return "Hello, " + name + "!", nil
		}),
	}
}

func main() {
	reg := rpc.MustNewRegistry(rpc.Zero[Hello](""))
	d := rpc.NewDispatcher(reg)

	http.Handle("/rpc", d.Handler(middleware.BodyLimit(1<<20)))
	http.Handle("/rpc/schema", d.SchemaHandler())

	log.Println("Listening on :8080")
	if err := http.ListenAndServe(":8080", nil); err != nil {
		log.Fatal(err)
	}
}
