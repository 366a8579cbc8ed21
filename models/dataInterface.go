package models

type Identifier interface {
	GetId() int
}

// interface for dataloader result
type Data interface {
	Identifier
	GetDefault(int) Data
}

func (b Branch) GetId() int {
	return b.ID
}

// unknown branch ids resolve to a placeholder so list screens still render
func (b Branch) GetDefault(id int) Data {
	return Branch{
		ID:     id,
		Name:   "Unknown branch",
		Status: BranchStatusInactive,
	}
}

func (c Client) GetId() int {
	return c.ID
}

func (c Client) GetDefault(id int) Data {
	return Client{
		ID:     id,
		Status: ClientStatusInactive,
	}
}
