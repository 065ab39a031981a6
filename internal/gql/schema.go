// Package gql exposes the auth operations as a GraphQL schema.
package gql

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/graphql-go/graphql"

	"github.com/sessionauth/sessionauth-go/internal/logging"
	"github.com/sessionauth/sessionauth-go/internal/middleware"
	"github.com/sessionauth/sessionauth-go/internal/model"
	"github.com/sessionauth/sessionauth-go/internal/session"
)

var errInternal = errors.New("internal server error")

// Authenticator is the credential service the resolvers call.
type Authenticator interface {
	Me(ctx context.Context, sc *session.Context) (*model.User, error)
	Register(ctx context.Context, sc *session.Context, creds model.Credentials) (model.UserResult, error)
	Login(ctx context.Context, sc *session.Context, creds model.Credentials) (model.UserResult, error)
	Logout(ctx context.Context, sc *session.Context) bool
}

var userType = graphql.NewObject(graphql.ObjectConfig{
	Name: "User",
	Fields: graphql.Fields{
		"id": &graphql.Field{
			Type: graphql.NewNonNull(graphql.Int),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*model.User).ID, nil
			},
		},
		"username": &graphql.Field{
			Type: graphql.NewNonNull(graphql.String),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*model.User).Username, nil
			},
		},
		"createdAt": &graphql.Field{
			Type: graphql.NewNonNull(graphql.String),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*model.User).CreatedAt.Format(time.RFC3339Nano), nil
			},
		},
		"updatedAt": &graphql.Field{
			Type: graphql.NewNonNull(graphql.String),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*model.User).UpdatedAt.Format(time.RFC3339Nano), nil
			},
		},
	},
})

var fieldErrorType = graphql.NewObject(graphql.ObjectConfig{
	Name: "FieldError",
	Fields: graphql.Fields{
		"field": &graphql.Field{
			Type: graphql.NewNonNull(graphql.String),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(model.FieldError).Field, nil
			},
		},
		"message": &graphql.Field{
			Type: graphql.NewNonNull(graphql.String),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(model.FieldError).Message, nil
			},
		},
	},
})

var userResponseType = graphql.NewObject(graphql.ObjectConfig{
	Name: "UserResponse",
	Fields: graphql.Fields{
		"errors": &graphql.Field{
			Type: graphql.NewList(graphql.NewNonNull(fieldErrorType)),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				r := p.Source.(model.UserResult)
				if len(r.Errors) == 0 {
					return nil, nil
				}
				return r.Errors, nil
			},
		},
		"user": &graphql.Field{
			Type: userType,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				r := p.Source.(model.UserResult)
				if r.User == nil {
					return nil, nil
				}
				return r.User, nil
			},
		},
	},
})

var credentialsInput = graphql.NewInputObject(graphql.InputObjectConfig{
	Name: "UserCredentials",
	Fields: graphql.InputObjectConfigFieldMap{
		"username": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
		"password": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
	},
})

// resolver holds the dependencies shared by the root fields.
type resolver struct {
	svc    Authenticator
	logger *slog.Logger
}

// NewSchema builds the GraphQL schema over svc. Fatal service errors are
// logged and reported to clients as "internal server error".
func NewSchema(svc Authenticator, logger *slog.Logger) (graphql.Schema, error) {
	r := &resolver{svc: svc, logger: logger}

	credentialsArgs := graphql.FieldConfigArgument{
		"credentials": &graphql.ArgumentConfig{Type: graphql.NewNonNull(credentialsInput)},
	}

	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"me": &graphql.Field{
				Type:    userType,
				Resolve: r.me,
			},
		},
	})

	mutation := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"register": &graphql.Field{
				Type:    graphql.NewNonNull(userResponseType),
				Args:    credentialsArgs,
				Resolve: r.register,
			},
			"login": &graphql.Field{
				Type:    graphql.NewNonNull(userResponseType),
				Args:    credentialsArgs,
				Resolve: r.login,
			},
			"logout": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.Boolean),
				Resolve: r.logout,
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    query,
		Mutation: mutation,
	})
}

func (r *resolver) me(p graphql.ResolveParams) (interface{}, error) {
	user, err := r.svc.Me(p.Context, middleware.SessionFromContext(p.Context))
	if err != nil {
		return nil, r.internal("me failed", err)
	}
	if user == nil {
		return nil, nil
	}
	return user, nil
}

func (r *resolver) register(p graphql.ResolveParams) (interface{}, error) {
	result, err := r.svc.Register(p.Context, middleware.SessionFromContext(p.Context), credentialsArg(p))
	if err != nil {
		return nil, r.internal("register failed", err)
	}
	return result, nil
}

func (r *resolver) login(p graphql.ResolveParams) (interface{}, error) {
	result, err := r.svc.Login(p.Context, middleware.SessionFromContext(p.Context), credentialsArg(p))
	if err != nil {
		return nil, r.internal("login failed", err)
	}
	return result, nil
}

func (r *resolver) logout(p graphql.ResolveParams) (interface{}, error) {
	return r.svc.Logout(p.Context, middleware.SessionFromContext(p.Context)), nil
}

func (r *resolver) internal(msg string, err error) error {
	logging.LogError(r.logger, msg, err)
	return errInternal
}

func credentialsArg(p graphql.ResolveParams) model.Credentials {
	in, _ := p.Args["credentials"].(map[string]interface{})
	username, _ := in["username"].(string)
	password, _ := in["password"].(string)
	return model.Credentials{Username: username, Password: password}
}
