package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daggerml/dml/internal/fn"
	"github.com/daggerml/dml/internal/kvstore"
	"github.com/daggerml/dml/internal/model"
	"github.com/daggerml/dml/internal/repo"
)

var dagCmd = &cobra.Command{
	Use:   "dag",
	Short: "Manage in-flight DAG builder sessions (create, invoke, delete, list, describe)",
}

func encodeToken(ref model.Ref) (string, error) {
	data, err := json.Marshal(ref.To)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func decodeToken(token string) (model.Ref, error) {
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return model.Ref{}, err
	}
	var to string
	if err := json.Unmarshal(data, &to); err != nil {
		return model.Ref{}, err
	}
	return model.Ref{To: to}, nil
}

var dagCreateCmd = &cobra.Command{
	Use:   "create <name> <message>",
	Short: "Begin a new DAG builder session, printing its index token",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, _, err := openRepo(false)
		if err != nil {
			return err
		}
		defer r.Close()
		var token string
		if err := r.WithTx(true, func(tx *kvstore.Tx) error {
			idx, err := r.Begin(tx, args[0])
			if err != nil {
				return err
			}
			token, err = encodeToken(idx)
			return err
		}); err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

var dagInvokeCmd = &cobra.Command{
	Use:   "invoke <token> <json>",
	Short: "Dispatch an op against an in-flight index",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var triple []json.RawMessage
		if err := json.Unmarshal([]byte(args[1]), &triple); err != nil || len(triple) != 3 {
			return fmt.Errorf("dag invoke: expected a [op, args, kwargs] JSON triple")
		}
		var op string
		if err := json.Unmarshal(triple[0], &op); err != nil {
			return err
		}

		index, err := decodeToken(args[0])
		if err != nil {
			return err
		}
		r, _, err := openRepo(false)
		if err != nil {
			return err
		}
		defer r.Close()

		var result any
		err = r.WithTx(true, func(tx *kvstore.Tx) error {
			var rerr error
			result, rerr = invokeOp(r, tx, index, op, triple[1])
			return rerr
		})
		if err != nil {
			return err
		}
		out, err := json.Marshal(result)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func invokeOp(r *repo.Repo, tx *kvstore.Tx, index model.Ref, op string, rawArgs json.RawMessage) (any, error) {
	switch op {
	case "put_load":
		var params struct {
			Dag  string  `json:"dag"`
			Node *string `json:"node"`
			Name string  `json:"name"`
			Doc  *string `json:"doc"`
		}
		if err := json.Unmarshal(rawArgs, &params); err != nil {
			return nil, err
		}
		var node *model.Ref
		if params.Node != nil {
			n := model.Ref{To: *params.Node}
			node = &n
		}
		ref, err := r.PutLoad(tx, index, model.Ref{To: params.Dag}, node, params.Name, params.Doc)
		if err != nil {
			return nil, err
		}
		return ref.To, nil
	case "set_result":
		var params struct {
			Result string `json:"result"`
		}
		if err := json.Unmarshal(rawArgs, &params); err != nil {
			return nil, err
		}
		if err := r.SetResult(tx, index, model.Ref{To: params.Result}); err != nil {
			return nil, err
		}
		return nil, nil
	case "set_error":
		var params struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		if err := json.Unmarshal(rawArgs, &params); err != nil {
			return nil, err
		}
		if err := r.SetError(tx, index, &model.Error{Message: params.Message, Code: params.Code}); err != nil {
			return nil, err
		}
		return nil, nil
	case "commit":
		var params struct {
			DagName string `json:"dag_name"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(rawArgs, &params); err != nil {
			return nil, err
		}
		ref, err := r.Commit(tx, index, params.DagName, params.Message)
		if err != nil {
			return nil, err
		}
		return ref.To, nil
	case "start_fn":
		var params struct {
			Argv  []string `json:"argv"`
			Retry bool     `json:"retry"`
		}
		if err := json.Unmarshal(rawArgs, &params); err != nil {
			return nil, err
		}
		argv := make([]model.Ref, len(params.Argv))
		for i, s := range params.Argv {
			argv[i] = model.Ref{To: s}
		}
		ref, err := fn.Dispatch(r, tx, index, argv, params.Retry)
		if err != nil {
			return nil, err
		}
		return ref.To, nil
	}
	return nil, fmt.Errorf("dag invoke: unsupported op %q", op)
}

var dagDeleteCmd = &cobra.Command{
	Use:   "delete <token>",
	Short: "Abandon an in-flight index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := decodeToken(args[0])
		if err != nil {
			return err
		}
		r, _, err := openRepo(false)
		if err != nil {
			return err
		}
		defer r.Close()
		return r.WithTx(true, func(tx *kvstore.Tx) error {
			return r.DeleteIndex(tx, index)
		})
	},
}

var dagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List in-flight indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, _, err := openRepo(false)
		if err != nil {
			return err
		}
		defer r.Close()
		return r.WithTx(false, func(tx *kvstore.Tx) error {
			for _, ref := range r.ListIndexes(tx) {
				fmt.Println(ref.To)
			}
			return nil
		})
	},
}

var dagDescribeCmd = &cobra.Command{
	Use:   "describe <dag-ref>",
	Short: "Describe a dag's nodes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, _, err := openRepo(false)
		if err != nil {
			return err
		}
		defer r.Close()
		return r.WithTx(false, func(tx *kvstore.Tx) error {
			descs, err := r.DescribeDag(tx, model.Ref{To: args[0]})
			if err != nil {
				return err
			}
			for _, d := range descs {
				fmt.Printf("%s\t%s\n", d.Ref.To, d.Kind)
			}
			return nil
		})
	},
}

func init() {
	dagCmd.AddCommand(dagCreateCmd, dagInvokeCmd, dagDeleteCmd, dagListCmd, dagDescribeCmd)
}
