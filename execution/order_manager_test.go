package execution

import "testing"

func TestOrderManagerPlaced(t *testing.T) {
	om := NewOrderManager()
	om.AddOrder(&Order{OrderID: 1, Side: SideBuy, Price: d("0.6"), Status: OrderStatusNew})
	om.AddOrder(&Order{OrderID: 2, Side: SideSell, Price: d("0.7"), Status: OrderStatusFilled})
	om.AddOrder(nil)

	if om.Len() != 2 {
		t.Errorf("Expected 2 tracked orders, got %d", om.Len())
	}
	if !om.Placed(SideBuy, d("0.6000")) {
		t.Error("Expected resting BUY@0.6 to be reported")
	}
	if om.Placed(SideSell, d("0.6")) {
		t.Error("Side must be part of the key")
	}
	if om.Placed(SideSell, d("0.7")) {
		t.Error("Filled orders are not resting")
	}
}

func TestOrderManagerSync(t *testing.T) {
	om := NewOrderManager()
	om.AddOrder(&Order{OrderID: 1, Side: SideBuy, Price: d("0.6"), Status: OrderStatusNew})
	om.AddOrder(&Order{OrderID: 2, Side: SideSell, Price: d("0.7"), Status: OrderStatusNew})

	om.Sync([]Order{{OrderID: 2, Side: SideSell, Price: d("0.7"), Status: OrderStatusPartiallyFilled, ExecutedQty: d("3")}})

	if om.GetOrder(1) != nil {
		t.Error("Expected order 1 to be dropped after it left the book")
	}
	got := om.GetOrder(2)
	if got == nil || got.Status != OrderStatusPartiallyFilled || !got.ExecutedQty.Equal(d("3")) {
		t.Errorf("Expected order 2 to be updated, got %+v", got)
	}
}

func TestOrderManagerUpdateOrder(t *testing.T) {
	om := NewOrderManager()
	om.AddOrder(&Order{OrderID: 9, Side: SideBuy, Status: OrderStatusNew})

	om.UpdateOrder(&Order{OrderID: 9, Status: OrderStatusFilled, ExecutedQty: d("30")})
	om.UpdateOrder(&Order{OrderID: 10, Status: OrderStatusFilled})
	om.UpdateOrder(nil)

	if got := om.GetOrder(9); got.Status != OrderStatusFilled {
		t.Errorf("Expected FILLED, got %s", got.Status)
	}
	if om.GetOrder(10) != nil {
		t.Error("Updates for untracked orders must be ignored")
	}
}

func TestOrderManagerRestingAndPrune(t *testing.T) {
	om := NewOrderManager()
	om.AddOrder(&Order{OrderID: 1, Side: SideBuy, Status: OrderStatusNew})
	om.AddOrder(&Order{OrderID: 2, Side: SideSell, Status: OrderStatusFilled})
	om.AddOrder(&Order{OrderID: 3, Side: SideBuy, Status: OrderStatusPartiallyFilled})
	om.AddOrder(&Order{OrderID: 4, Side: SideSell, Status: OrderStatusExpired})

	if got := len(om.Resting()); got != 2 {
		t.Errorf("Expected 2 resting orders, got %d", got)
	}
	if pruned := om.Prune(); pruned != 2 {
		t.Errorf("Expected 2 pruned, got %d", pruned)
	}
	if om.Len() != 2 || om.GetOrder(2) != nil || om.GetOrder(4) != nil {
		t.Errorf("Expected only resting orders left, got %d", om.Len())
	}

	om.UpdateOrder(&Order{OrderID: 1, Status: OrderStatusFilled})
	om.Prune()
	if om.Len() != 1 || om.GetOrder(3) == nil {
		t.Errorf("Expected order 3 alone, got %d tracked", om.Len())
	}
}
